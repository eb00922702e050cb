// Package console handles the line-based terminal dialogue with the candidate.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// HeaderWidth is the width of header rules and centered titles.
const HeaderWidth = 50

// WordsPerLine is the default wrap width for transcripts and questions.
const WordsPerLine = 10

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#94A3B8")
)

// Console writes styled output and reads one answer line at a time.
type Console struct {
	in  *bufio.Reader
	out io.Writer

	lines    chan inputLine
	readOnce sync.Once
	readErr  error // sticky once input has failed or ended

	title lipgloss.Style
	rule  lipgloss.Style
	muted lipgloss.Style
}

type inputLine struct {
	text string
	err  error
}

// Option adjusts the renderer used for styling.
type Option func(*lipgloss.Renderer)

// WithPlainOutput disables colors and text attributes.
func WithPlainOutput() Option {
	return func(r *lipgloss.Renderer) {
		r.SetColorProfile(termenv.Ascii)
	}
}

// New creates a console reading answers from in and writing to out. Styling
// follows the capabilities of out; non-terminals get plain text.
func New(in io.Reader, out io.Writer, opts ...Option) *Console {
	r := lipgloss.NewRenderer(out)
	for _, opt := range opts {
		opt(r)
	}
	return &Console{
		in:    bufio.NewReader(in),
		out:   out,
		lines: make(chan inputLine),
		title: r.NewStyle().Bold(true).Foreground(colorPrimary),
		rule:  r.NewStyle().Foreground(colorPrimary),
		muted: r.NewStyle().Foreground(colorMuted).Italic(true),
	}
}

// Header prints title centered between two rules.
func (c *Console) Header(title string) {
	rule := strings.Repeat("=", HeaderWidth)
	centered := strings.TrimRight(lipgloss.PlaceHorizontal(HeaderWidth, lipgloss.Center, title), " ")
	fmt.Fprintln(c.out, c.rule.Render(rule))
	fmt.Fprintln(c.out, c.title.Render(centered))
	fmt.Fprintln(c.out, c.rule.Render(rule))
}

// Println writes its arguments followed by a newline.
func (c *Console) Println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

// Printf writes formatted output.
func (c *Console) Printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

// Muted prints a secondary status line.
func (c *Console) Muted(text string) {
	fmt.Fprintln(c.out, c.muted.Render(text))
}

// Prompt prints prompt and reads one line without its line ending. A final
// line without a newline is returned as is; io.EOF is returned only when
// nothing was read. A done ctx abandons the read and returns ctx.Err().
func (c *Console) Prompt(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	if c.readErr != nil {
		return "", c.readErr
	}
	c.readOnce.Do(func() { go c.readLoop() })

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return "", ctx.Err()
	case l := <-c.lines:
		text := strings.TrimRight(l.text, "\r\n")
		if l.err != nil {
			c.readErr = l.err
			if errors.Is(l.err, io.EOF) && text != "" {
				return text, nil
			}
			return "", l.err
		}
		return text, nil
	}
}

// readLoop hands input lines to Prompt in order. It is the only reader of
// c.in, so a prompt abandoned on cancellation leaves no stray read behind.
func (c *Console) readLoop() {
	for {
		text, err := c.in.ReadString('\n')
		c.lines <- inputLine{text: text, err: err}
		if err != nil {
			return
		}
	}
}

// WaitForEnter blocks until the candidate presses Enter. A closed input
// counts as Enter so scripted runs do not stall.
func (c *Console) WaitForEnter(ctx context.Context, prompt string) error {
	_, err := c.Prompt(ctx, prompt)
	if errors.Is(err, io.EOF) {
		c.Println()
		return nil
	}
	return err
}

// Confirm asks a y/n question. Only "y" (any case) is a yes; a closed input
// is a no. The error is non-nil only when ctx ends or input fails.
func (c *Console) Confirm(ctx context.Context, prompt string) (bool, error) {
	answer, err := c.Prompt(ctx, prompt)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.ToLower(strings.TrimSpace(answer)) == "y", nil
}

// WrapWords breaks text into lines of at most n words.
func WrapWords(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) <= n {
		return strings.Join(words, " ")
	}
	var lines []string
	for i := 0; i < len(words); i += n {
		lines = append(lines, strings.Join(words[i:min(i+n, len(words))], " "))
	}
	return strings.Join(lines, "\n")
}
