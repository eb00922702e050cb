// Package feedback folds scored responses into one text block per test part.
package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/ielts/internal/model"
)

// Scorer evaluates one transcribed answer.
type Scorer interface {
	ScoreResponse(ctx context.Context, transcript string, confidence float64) (model.FeedbackResult, error)
}

// Aggregator scores the responses of a part and concatenates the results.
type Aggregator struct {
	scorer Scorer
}

// NewAggregator creates an Aggregator backed by s.
func NewAggregator(s Scorer) *Aggregator {
	return &Aggregator{scorer: s}
}

// Aggregate scores records in order and returns the part's feedback text.
func (a *Aggregator) Aggregate(ctx context.Context, part model.Part, records []model.ResponseRecord) (model.PartFeedback, error) {
	pf := model.PartFeedback{Part: part}
	var sb strings.Builder
	for i, r := range records {
		res, err := a.scorer.ScoreResponse(ctx, r.Transcript, r.Confidence)
		if err != nil {
			return model.PartFeedback{}, fmt.Errorf("score part %d response %d: %w", part, i+1, err)
		}
		sb.WriteString(FormatBlock(part, res))
		pf.Results = append(pf.Results, res)
	}
	pf.Text = sb.String()
	return pf, nil
}

// FormatBlock renders one scored response in report form.
func FormatBlock(part model.Part, res model.FeedbackResult) string {
	return fmt.Sprintf("Part %d Feedback: %s\nScores: %s\n\n", part, res.Feedback, res.Scores)
}

// FromAttempt rebuilds the per-part feedback of an archived attempt, one
// entry per test part in exam order.
func FromAttempt(a model.Attempt) []model.PartFeedback {
	byPart := make(map[model.Part]*model.PartFeedback, len(model.Parts))
	out := make([]model.PartFeedback, len(model.Parts))
	for i, p := range model.Parts {
		out[i].Part = p
		byPart[p] = &out[i]
	}

	for _, r := range a.Responses {
		pf, ok := byPart[r.Part]
		if !ok {
			continue
		}
		res := model.FeedbackResult{Feedback: r.Feedback, Scores: r.Scores}
		pf.Text += FormatBlock(r.Part, res)
		pf.Results = append(pf.Results, res)
	}
	return out
}
