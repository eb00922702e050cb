package model

import "time"

// AttemptExport is the top-level JSON structure for archive export.
type AttemptExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Count       int             `json:"count"`
	Attempts    []AttemptResult `json:"attempts"`
}

// AttemptResult holds one attempt with per-part category averages for export.
type AttemptResult struct {
	Attempt
	PartAverages map[Part]CategoryAverages `json:"part_averages,omitempty"`
}

// CategoryAverages holds mean category scores over the responses of one part.
type CategoryAverages struct {
	Responses     int     `json:"responses"`
	Fluency       float64 `json:"fluency"`
	Pronunciation float64 `json:"pronunciation"`
	Grammar       float64 `json:"grammar"`
	Vocabulary    float64 `json:"vocabulary"`
}

// Averages computes per-part category means for an attempt.
func (a Attempt) Averages() map[Part]CategoryAverages {
	sums := make(map[Part]*CategoryAverages)
	for _, r := range a.Responses {
		avg, ok := sums[r.Part]
		if !ok {
			avg = &CategoryAverages{}
			sums[r.Part] = avg
		}
		avg.Responses++
		avg.Fluency += float64(r.Scores.Fluency)
		avg.Pronunciation += float64(r.Scores.Pronunciation)
		avg.Grammar += float64(r.Scores.Grammar)
		avg.Vocabulary += float64(r.Scores.Vocabulary)
	}

	out := make(map[Part]CategoryAverages, len(sums))
	for p, s := range sums {
		n := float64(s.Responses)
		out[p] = CategoryAverages{
			Responses:     s.Responses,
			Fluency:       s.Fluency / n,
			Pronunciation: s.Pronunciation / n,
			Grammar:       s.Grammar / n,
			Vocabulary:    s.Vocabulary / n,
		}
	}
	return out
}
