package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func newTestConsole(input string) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	return New(strings.NewReader(input), &out, WithPlainOutput()), &out
}

func TestHeader(t *testing.T) {
	c, out := newTestConsole("")
	c.Header("Test Mode")

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 header lines, got %d: %q", len(lines), out.String())
	}
	rule := strings.Repeat("=", HeaderWidth)
	if lines[0] != rule || lines[2] != rule {
		t.Errorf("rules = %q / %q", lines[0], lines[2])
	}
	title := lines[1]
	if strings.TrimSpace(title) != "Test Mode" {
		t.Errorf("title line = %q", title)
	}
	// Centered: the leading pad is half the free space.
	if lead := len(title) - len(strings.TrimLeft(title, " ")); lead != (HeaderWidth-len("Test Mode"))/2 {
		t.Errorf("leading pad = %d, want %d", lead, (HeaderWidth-len("Test Mode"))/2)
	}
}

func TestPrompt(t *testing.T) {
	c, out := newTestConsole(" T \r\nsecond")

	got, err := c.Prompt(context.Background(), "Choose: ")
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if got != " T " {
		t.Errorf("Prompt() = %q, want %q", got, " T ")
	}
	if out.String() != "Choose: " {
		t.Errorf("output = %q", out.String())
	}

	got, err = c.Prompt(context.Background(), "")
	if err != nil || got != "second" {
		t.Errorf("last line without newline = %q, %v", got, err)
	}

	if _, err := c.Prompt(context.Background(), ""); err != io.EOF {
		t.Errorf("Prompt at EOF error = %v, want io.EOF", err)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"  y  \n", true},
		{"yes\n", false},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		c, _ := newTestConsole(tt.input)
		got, err := c.Confirm(context.Background(), "Do you want to continue? (y/n): ")
		if err != nil || got != tt.want {
			t.Errorf("Confirm(%q) = %v, %v, want %v", tt.input, got, err, tt.want)
		}
	}
}

func TestWaitForEnter(t *testing.T) {
	c, out := newTestConsole("\n")
	if err := c.WaitForEnter(context.Background(), "Press Enter..."); err != nil {
		t.Fatalf("WaitForEnter: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Press Enter...") {
		t.Errorf("output = %q", out.String())
	}

	// Closed input does not block or fail.
	if err := c.WaitForEnter(context.Background(), "again"); err != nil {
		t.Errorf("WaitForEnter at EOF = %v", err)
	}
}

func TestPromptCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	var out bytes.Buffer
	c := New(pr, &out, WithPlainOutput())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- c.WaitForEnter(ctx, "Press Enter...") }()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WaitForEnter = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForEnter still blocked after cancellation")
	}

	// A line typed after the abandoned prompt goes to the next one.
	go func() { _, _ = io.WriteString(pw, "y\n") }()
	ok, err := c.Confirm(context.Background(), "Continue? ")
	if err != nil || !ok {
		t.Errorf("Confirm after cancel = %v, %v, want true", ok, err)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if _, err := c.Confirm(cancelled, "Continue? "); !errors.Is(err, context.Canceled) {
		t.Errorf("Confirm with done context = %v, want context.Canceled", err)
	}
}

func TestPrintHelpers(t *testing.T) {
	c, out := newTestConsole("")
	c.Printf("Question: %s\n", "Where are you from?")
	c.Println("You said:", "Kazan")
	c.Muted("Listening...")

	want := "Question: Where are you from?\nYou said: Kazan\nListening...\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestWrapWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want string
	}{
		{"short", "I live in Kazan.", 10, "I live in Kazan."},
		{"exact", "one two three", 3, "one two three"},
		{"wraps", "one two three four five", 2, "one two\nthree four\nfive"},
		{"collapses whitespace", "  one   two\tthree  ", 10, "one two three"},
		{"empty", "", 10, ""},
		{"non-positive width", "one two three", 0, "one two three"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapWords(tt.text, tt.n); got != tt.want {
				t.Errorf("WrapWords(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.want)
			}
		})
	}
}
