package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects between the full three-part test and the open-ended practice loop.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeTest     Mode = "test"
)

// Part identifies one of the three phases of the speaking test.
type Part int

const (
	// PartPractice tags responses from the practice loop.
	PartPractice     Part = 0
	PartIntroduction Part = 1
	PartLongTurn     Part = 2
	PartDiscussion   Part = 3
)

// Parts lists the test parts in exam order.
var Parts = []Part{PartIntroduction, PartLongTurn, PartDiscussion}

// ReportTitle is the section title used in the PDF report.
func (p Part) ReportTitle() string {
	switch p {
	case PartIntroduction:
		return "Part 1: Introduction Feedback"
	case PartLongTurn:
		return "Part 2: Long Turn Feedback"
	case PartDiscussion:
		return "Part 3: Two-Way Discussion Feedback"
	}
	return fmt.Sprintf("Part %d Feedback", int(p))
}

// Question is an immutable prompt from the question bank.
type Question struct {
	Text string `json:"text" yaml:"text"`
}

// CueCard is the Part 2 topic with its guidance points.
type CueCard struct {
	Topic  string   `json:"topic" yaml:"topic"`
	Points []string `json:"points" yaml:"points"`
}

// ResponseRecord is one transcribed answer. An empty Transcript means no
// speech was detected.
type ResponseRecord struct {
	Question   string
	Transcript string
	Confidence float64
}

// Empty reports whether the record carries no usable speech.
func (r ResponseRecord) Empty() bool {
	return strings.TrimSpace(r.Transcript) == ""
}

// Category is a rubric category scored by the examiner.
type Category string

const (
	CategoryFluency       Category = "fluency"
	CategoryPronunciation Category = "pronunciation"
	CategoryGrammar       Category = "grammar"
	CategoryVocabulary    Category = "vocabulary"
)

// Categories lists the rubric categories in report order.
var Categories = []Category{CategoryFluency, CategoryPronunciation, CategoryGrammar, CategoryVocabulary}

// Label is the capitalized name the examiner uses in its score summary.
func (c Category) Label() string {
	s := string(c)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ScoreSet holds one integer score per category. The zero value is a valid
// set with every category at 0.
type ScoreSet struct {
	Fluency       int `json:"fluency"`
	Pronunciation int `json:"pronunciation"`
	Grammar       int `json:"grammar"`
	Vocabulary    int `json:"vocabulary"`
}

// Get returns the score for c, or 0 for an unknown category.
func (s ScoreSet) Get(c Category) int {
	switch c {
	case CategoryFluency:
		return s.Fluency
	case CategoryPronunciation:
		return s.Pronunciation
	case CategoryGrammar:
		return s.Grammar
	case CategoryVocabulary:
		return s.Vocabulary
	}
	return 0
}

// Set stores v for c. Unknown categories are ignored.
func (s *ScoreSet) Set(c Category, v int) {
	switch c {
	case CategoryFluency:
		s.Fluency = v
	case CategoryPronunciation:
		s.Pronunciation = v
	case CategoryGrammar:
		s.Grammar = v
	case CategoryVocabulary:
		s.Vocabulary = v
	}
}

func (s ScoreSet) String() string {
	parts := make([]string, 0, len(Categories))
	for _, c := range Categories {
		parts = append(parts, fmt.Sprintf("%s: %d", c, s.Get(c)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FeedbackResult is the scored examiner response for one ResponseRecord.
type FeedbackResult struct {
	Feedback string   `json:"feedback"`
	Scores   ScoreSet `json:"scores"`
}

// PartFeedback is the aggregated feedback text for one part.
type PartFeedback struct {
	Part    Part
	Text    string
	Results []FeedbackResult
}

// ScoredResponse is an archived response together with its feedback.
type ScoredResponse struct {
	Part       Part     `json:"part"`
	Seq        int      `json:"seq"`
	Question   string   `json:"question"`
	Transcript string   `json:"transcript"`
	Confidence float64  `json:"confidence"`
	Feedback   string   `json:"feedback"`
	Scores     ScoreSet `json:"scores"`
}

// Attempt is a finished exam or practice run as stored in the archive.
type Attempt struct {
	ID         string           `json:"id"`
	Mode       Mode             `json:"mode"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	ReportPath string           `json:"report_path,omitempty"`
	Responses  []ScoredResponse `json:"responses,omitempty"`
}

// AttemptSummary is the listing form of an Attempt.
type AttemptSummary struct {
	ID            string    `json:"id"`
	Mode          Mode      `json:"mode"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	ReportPath    string    `json:"report_path,omitempty"`
	ResponseCount int       `json:"response_count"`
}
