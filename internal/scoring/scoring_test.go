package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pavelanni/ielts/internal/model"
)

type fakeExaminer struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeExaminer) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestParseScoreWellFormed(t *testing.T) {
	for _, c := range model.Categories {
		for _, label := range []string{c.Label(), strings.ToUpper(string(c)), string(c)} {
			for _, n := range []int{0, 1, 5, 9} {
				text := fmt.Sprintf("Some preamble\n%s: %d\nOther: 3", label, n)
				if got := ParseScore(text, c); got != n {
					t.Errorf("ParseScore(%q, %s) = %d, want %d", text, c, got, n)
				}
			}
		}
	}
}

func TestParseScoreMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"non-integer", "Fluency: seven"},
		{"decimal", "Fluency: 7.5"},
		{"band with slash", "Fluency: 7/9"},
		{"missing colon", "Fluency 7"},
		{"empty value", "Fluency:"},
		{"category absent", "Grammar: 6\nVocabulary: 7"},
		{"empty text", ""},
		{"indented line", "  Fluency: 7"},
		{"markdown bold", "**Fluency**: 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseScore(tt.text, model.CategoryFluency); got != 0 {
				t.Errorf("ParseScore(%q) = %d, want 0", tt.text, got)
			}
		})
	}
}

func TestParseScoreFirstMatchWins(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"later duplicate ignored", "Grammar: 6\nGrammar: 8", 6},
		{"malformed first line is final", "Grammar: good\nGrammar: 8", 0},
		{"value between colons", "Grammar: 5: mostly accurate", 5},
		{"longer label shares prefix", "Grammar and accuracy: 4\nGrammar: 8", 4},
		{"crlf line endings", "Fluency: 7\r\nGrammar: 6\r\n", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseScore(tt.text, model.CategoryGrammar); got != tt.want {
				t.Errorf("ParseScore(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestApplyConfidencePenalty(t *testing.T) {
	tests := []struct {
		score      int
		confidence float64
		want       int
	}{
		{8, 0.65, 7},
		{8, 0.79, 7},
		{8, 0.8, 8},
		{8, 0.95, 8},
		{1, 0.5, 1},
		{2, 0.0, 1},
		{0, 0.3, 0},
		{9, 1.0, 9},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d@%.2f", tt.score, tt.confidence), func(t *testing.T) {
			if got := ApplyConfidencePenalty(tt.score, tt.confidence); got != tt.want {
				t.Errorf("ApplyConfidencePenalty(%d, %v) = %d, want %d", tt.score, tt.confidence, got, tt.want)
			}
		})
	}
}

func TestScoreResponseLowConfidence(t *testing.T) {
	ex := &fakeExaminer{reply: "Fluency: 7\nPronunciation: 8\nGrammar: 6\nVocabulary: 7\nRecommendations: ..."}
	e := New(ex)

	res, err := e.ScoreResponse(context.Background(), "I enjoy hiking with my friends.", 0.65)
	if err != nil {
		t.Fatalf("ScoreResponse: %v", err)
	}
	want := model.ScoreSet{Fluency: 7, Pronunciation: 7, Grammar: 6, Vocabulary: 7}
	if res.Scores != want {
		t.Errorf("scores = %v, want %v", res.Scores, want)
	}
	if res.Feedback != ex.reply {
		t.Errorf("feedback should be the raw examiner text, got %q", res.Feedback)
	}
	if len(ex.prompts) != 1 {
		t.Fatalf("expected one examiner call, got %d", len(ex.prompts))
	}
	if !strings.Contains(ex.prompts[0], "Response: I enjoy hiking with my friends.") {
		t.Errorf("prompt should embed the transcript:\n%s", ex.prompts[0])
	}
}

func TestScoreResponseUnrecognizedText(t *testing.T) {
	for _, confidence := range []float64{0, 0.5, 0.8, 1} {
		ex := &fakeExaminer{reply: "The candidate spoke well.\nKeep practicing."}
		res, err := New(ex).ScoreResponse(context.Background(), "hello", confidence)
		if err != nil {
			t.Fatalf("ScoreResponse: %v", err)
		}
		if res.Scores != (model.ScoreSet{}) {
			t.Errorf("confidence %v: scores = %v, want all zero", confidence, res.Scores)
		}
	}
}

func TestScoreResponseEmptyReply(t *testing.T) {
	res, err := New(&fakeExaminer{}).ScoreResponse(context.Background(), "hello", 0.9)
	if err != nil {
		t.Fatalf("ScoreResponse: %v", err)
	}
	if res.Scores != (model.ScoreSet{}) {
		t.Errorf("scores = %v, want all zero", res.Scores)
	}
}

func TestScoreResponseEmptyTranscript(t *testing.T) {
	ex := &fakeExaminer{reply: "Fluency: 9"}
	res, err := New(ex).ScoreResponse(context.Background(), "  ", 0)
	if err != nil {
		t.Fatalf("ScoreResponse: %v", err)
	}
	if len(ex.prompts) != 0 {
		t.Error("empty transcript should not reach the examiner")
	}
	if res.Feedback != NoResponseFeedback {
		t.Errorf("feedback = %q, want %q", res.Feedback, NoResponseFeedback)
	}
	if res.Scores != (model.ScoreSet{}) {
		t.Errorf("scores = %v, want all zero", res.Scores)
	}
}

func TestScoreResponseExaminerError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := New(&fakeExaminer{err: boom}).ScoreResponse(context.Background(), "hello", 0.9)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
}
