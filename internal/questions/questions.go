// Package questions holds the question bank used by the speaking test.
package questions

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/ielts/internal/model"
)

// DiscussionTurns is the fixed number of Part 3 turns.
const DiscussionTurns = 2

// Bank is the full set of prompts for one program run.
type Bank struct {
	Introduction []model.Question
	CueCard      model.CueCard
	Discussion   [DiscussionTurns]string
	Practice     []model.Question
}

// bankFile is the on-disk shape; Discussion is a slice so its length can be checked.
type bankFile struct {
	Introduction []string      `yaml:"introduction"`
	CueCard      model.CueCard `yaml:"cue_card"`
	Discussion   []string      `yaml:"discussion"`
	Practice     []string      `yaml:"practice"`
}

// Default returns the built-in question bank.
func Default() Bank {
	return Bank{
		Introduction: toQuestions([]string{
			"Can you tell me about yourself?",
			"What do you do for a living?",
			"What are your hobbies?",
		}),
		CueCard: model.CueCard{
			Topic: "Describe a memorable event in your life.",
			Points: []string{
				"What the event was",
				"When and where it happened",
				"How you felt about it",
				"Why it was memorable",
			},
		},
		Discussion: [DiscussionTurns]string{
			"I am an IELTS examiner. Ask a question about why exercise is important.",
			"I am an IELTS examiner. Ask a follow-up question about staying healthy.",
		},
		Practice: toQuestions([]string{
			// General
			"What is your favorite book and why?",
			"Can you describe your hometown?",
			"What do you like to do in your free time?",
			"How do you usually spend your weekends?",
			"What is your favorite type of music and why?",
			// Work and study
			"Can you tell me about your job or studies?",
			"What do you enjoy most about your work or studies?",
			"What are the challenges you face in your job or studies?",
			"How do you manage your time between work/study and personal life?",
			"What are your future career or academic goals?",
			// Hobbies and interests
			"Do you have any hobbies? If so, what are they?",
			"How did you get interested in your hobby?",
			"What do you enjoy most about your hobby?",
			"Do you prefer indoor or outdoor activities? Why?",
			"Have you ever tried a new hobby recently? How was the experience?",
			// Travel and culture
			"Have you traveled to any other countries? If so, which ones?",
			"What is your favorite travel destination and why?",
			"Can you describe a memorable trip you had?",
			"How do you think traveling can impact a person's perspective?",
			"What cultural differences have you noticed when traveling?",
			// Technology and society
			"How has technology changed the way we communicate?",
			"What are the advantages and disadvantages of social media?",
			"How do you think technology will evolve in the next 10 years?",
			"What role does technology play in your daily life?",
			"Do you think technology has made our lives easier or more complicated?",
		}),
	}
}

// Load reads a YAML question bank from path. Sections missing from the file
// keep their built-in values.
func Load(path string) (Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bank{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML question bank on top of the defaults.
func Parse(data []byte) (Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Bank{}, fmt.Errorf("parse question bank: %w", err)
	}

	b := Default()
	if len(f.Introduction) > 0 {
		b.Introduction = toQuestions(f.Introduction)
	}
	if f.CueCard.Topic != "" {
		b.CueCard = f.CueCard
	}
	if len(f.Discussion) > 0 {
		if len(f.Discussion) != DiscussionTurns {
			return Bank{}, fmt.Errorf("discussion needs exactly %d prompts, got %d", DiscussionTurns, len(f.Discussion))
		}
		copy(b.Discussion[:], f.Discussion)
	}
	if len(f.Practice) > 0 {
		b.Practice = toQuestions(f.Practice)
	}
	return b, nil
}

func toQuestions(texts []string) []model.Question {
	qs := make([]model.Question, 0, len(texts))
	for _, t := range texts {
		qs = append(qs, model.Question{Text: t})
	}
	return qs
}
