package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/ielts/internal/model"
)

// ExportAll builds the full archive export, newest attempt first.
func (s *Store) ExportAll(generatedAt time.Time) (model.AttemptExport, error) {
	summaries, err := s.ListAttempts()
	if err != nil {
		return model.AttemptExport{}, fmt.Errorf("list attempts: %w", err)
	}

	export := model.AttemptExport{
		GeneratedAt: generatedAt.UTC(),
		Attempts:    make([]model.AttemptResult, 0, len(summaries)),
	}
	for _, sum := range summaries {
		a, err := s.GetAttempt(sum.ID)
		if err != nil {
			return model.AttemptExport{}, fmt.Errorf("get attempt %s: %w", sum.ID, err)
		}
		export.Attempts = append(export.Attempts, model.AttemptResult{
			Attempt:      a,
			PartAverages: a.Averages(),
		})
	}
	export.Count = len(export.Attempts)

	return export, nil
}
