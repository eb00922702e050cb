package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/ielts/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

// MaxAnswerRunes caps the transcript length embedded in a prompt.
const MaxAnswerRunes = 10000

// NoAnswer replaces a blank transcript in prompts.
const NoAnswer = "[No answer provided]"

var (
	responseTagRegex = regexp.MustCompile(`(?i)</?\s*response\b[^>]*>`)

	evalTemplate = template.Must(template.ParseFS(templateFS, "templates/evaluate.txt"))
)

// EvalData holds template data for the evaluation prompt.
type EvalData struct {
	Answer     string
	Categories []string
}

// BuildEvalPrompt builds the examiner evaluation prompt for one transcript.
func BuildEvalPrompt(transcript string) (string, error) {
	labels := make([]string, 0, len(model.Categories))
	for _, c := range model.Categories {
		labels = append(labels, c.Label())
	}

	data := EvalData{
		Answer:     sanitizeAnswer(transcript),
		Categories: labels,
	}

	var buf bytes.Buffer
	if err := evalTemplate.ExecuteTemplate(&buf, "evaluate.txt", data); err != nil {
		return "", fmt.Errorf("execute evaluation template: %w", err)
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = responseTagRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return NoAnswer
	}

	if utf8.RuneCountInString(answer) > MaxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:MaxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
