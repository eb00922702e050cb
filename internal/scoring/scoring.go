// Package scoring turns one transcribed answer into examiner feedback and
// rubric scores.
package scoring

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pavelanni/ielts/internal/llm/prompts"
	"github.com/pavelanni/ielts/internal/model"
)

// ConfidenceThreshold is the transcription confidence below which the
// pronunciation score is reduced.
const ConfidenceThreshold = 0.8

// NoResponseFeedback is the feedback recorded for an answer with no speech.
const NoResponseFeedback = "No response was captured for this question."

var tracer = otel.Tracer("github.com/pavelanni/ielts/internal/scoring")

// Examiner produces free-form examiner text for a prompt.
type Examiner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Engine scores responses through an Examiner.
type Engine struct {
	examiner Examiner
}

// New creates a scoring engine.
func New(e Examiner) *Engine {
	return &Engine{examiner: e}
}

// ScoreResponse asks the examiner to evaluate transcript and parses the
// category scores out of the reply. Malformed replies never produce an
// error; only a failed examiner call does.
func (e *Engine) ScoreResponse(ctx context.Context, transcript string, confidence float64) (model.FeedbackResult, error) {
	ctx, span := tracer.Start(ctx, "scoring.score_response")
	defer span.End()
	span.SetAttributes(attribute.Float64("stt.confidence", confidence))

	if strings.TrimSpace(transcript) == "" {
		span.SetAttributes(attribute.Bool("scoring.empty_response", true))
		return model.FeedbackResult{Feedback: NoResponseFeedback}, nil
	}

	prompt, err := prompts.BuildEvalPrompt(transcript)
	if err != nil {
		return model.FeedbackResult{}, fmt.Errorf("build evaluation prompt: %w", err)
	}

	feedback, err := e.examiner.Complete(ctx, prompt)
	if err != nil {
		return model.FeedbackResult{}, fmt.Errorf("examiner evaluation: %w", err)
	}

	scores := ParseScores(feedback)
	scores.Pronunciation = ApplyConfidencePenalty(scores.Pronunciation, confidence)

	return model.FeedbackResult{Feedback: feedback, Scores: scores}, nil
}

// ParseScores extracts every category score from examiner text.
func ParseScores(text string) model.ScoreSet {
	var s model.ScoreSet
	for _, c := range model.Categories {
		s.Set(c, ParseScore(text, c))
	}
	return s
}

// ParseScore reads the score for one category. The first line starting with
// the category name (case-insensitive) is the only candidate; its value is
// the text between the first colon and the next one. Anything that does not
// parse as an integer scores 0.
func ParseScore(text string, c model.Category) int {
	prefix := strings.ToLower(string(c))
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(strings.ToLower(line), prefix) {
			continue
		}
		fields := strings.SplitN(line, ":", 3)
		if len(fields) < 2 {
			return 0
		}
		n, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// ApplyConfidencePenalty lowers a pronunciation score by one when the
// transcription confidence is under ConfidenceThreshold. A reduced score
// never drops below 1, and an unparsed 0 is left alone.
func ApplyConfidencePenalty(pronunciation int, confidence float64) int {
	if confidence >= ConfidenceThreshold || pronunciation <= 0 {
		return pronunciation
	}
	return max(1, pronunciation-1)
}
