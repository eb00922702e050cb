// Package session drives one run of the speaking simulator: mode
// selection, the three-part test with its feedback report, and the
// open-ended practice loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pavelanni/ielts/internal/console"
	"github.com/pavelanni/ielts/internal/feedback"
	appI18n "github.com/pavelanni/ielts/internal/i18n"
	"github.com/pavelanni/ielts/internal/model"
	"github.com/pavelanni/ielts/internal/questions"
	"github.com/pavelanni/ielts/internal/report"
	"github.com/pavelanni/ielts/internal/transcriber"
)

var tracer = otel.Tracer("github.com/pavelanni/ielts/internal/session")

// Transcriber captures one spoken answer.
type Transcriber interface {
	Transcribe(ctx context.Context) (transcriber.Result, error)
}

// Examiner produces free-form examiner text for a prompt.
type Examiner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Archive stores finished attempts.
type Archive interface {
	SaveAttempt(a model.Attempt) error
}

// Options tune a run. A nil Archive disables archiving.
type Options struct {
	Pause      time.Duration
	ReportPath string
	Archive    Archive
}

// Orchestrator runs the exam flow against the console.
type Orchestrator struct {
	console  *console.Console
	stt      Transcriber
	examiner Examiner
	scorer   feedback.Scorer
	bank     questions.Bank
	opts     Options

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	newID func() string
}

// New creates an Orchestrator. scorer evaluates answers; examiner generates
// the Part 3 questions.
func New(c *console.Console, stt Transcriber, examiner Examiner, scorer feedback.Scorer, bank questions.Bank, opts Options) *Orchestrator {
	if opts.ReportPath == "" {
		opts.ReportPath = report.DefaultPath
	}
	return &Orchestrator{
		console:  c,
		stt:      stt,
		examiner: examiner,
		scorer:   scorer,
		bank:     bank,
		opts:     opts,
		sleep:    sleepCtx,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Run asks for the mode and runs it. An unrecognized mode prints a message
// and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.console.Header(appI18n.T(ctx, "AppTitle"))
	answer, err := o.console.Prompt(ctx, appI18n.T(ctx, "ChooseMode"))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read mode: %w", err)
	}

	switch strings.ToUpper(strings.TrimSpace(answer)) {
	case "P":
		return o.RunPractice(ctx)
	case "T":
		return o.RunTest(ctx)
	default:
		o.console.Println(appI18n.T(ctx, "InvalidMode"))
		return nil
	}
}

// RunTest runs Parts 1 to 3, prints the feedback for each part, writes the
// PDF report and archives the attempt.
func (o *Orchestrator) RunTest(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session.run_test")
	defer span.End()

	started := o.now()
	o.console.Header(appI18n.T(ctx, "TestMode"))
	o.console.Println(appI18n.T(ctx, "TestIntro"))

	part1, err := o.RunPart1(ctx)
	if err != nil {
		return err
	}
	part2, err := o.RunPart2(ctx)
	if err != nil {
		return err
	}
	part3, err := o.RunPart3(ctx)
	if err != nil {
		return err
	}

	records := map[model.Part][]model.ResponseRecord{
		model.PartIntroduction: part1,
		model.PartLongTurn:     {part2},
		model.PartDiscussion:   part3,
	}
	headers := map[model.Part]string{
		model.PartIntroduction: "IntroFeedback",
		model.PartLongTurn:     "LongTurnFeedback",
		model.PartDiscussion:   "DiscussionFeedback",
	}

	agg := feedback.NewAggregator(o.scorer)
	parts := make([]model.PartFeedback, 0, len(model.Parts))
	for _, p := range model.Parts {
		pf, err := agg.Aggregate(ctx, p, records[p])
		if err != nil {
			return fmt.Errorf("feedback: %w", err)
		}
		parts = append(parts, pf)
	}
	for _, pf := range parts {
		o.console.Header(appI18n.T(ctx, headers[pf.Part]))
		o.console.Println(pf.Text)
	}

	finished := o.now()
	renderer := report.Renderer{CreatedAt: finished}
	if err := renderer.RenderFile(o.opts.ReportPath, report.Sections(parts)); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	o.console.Println(appI18n.Td(ctx, "ReportSaved", map[string]any{"Path": o.opts.ReportPath}))

	attempt := model.Attempt{
		ID:         o.newID(),
		Mode:       model.ModeTest,
		StartedAt:  started,
		FinishedAt: finished,
		ReportPath: o.opts.ReportPath,
	}
	for _, pf := range parts {
		for i, rec := range records[pf.Part] {
			attempt.Responses = append(attempt.Responses, scored(pf.Part, i, rec, pf.Results[i]))
		}
	}
	span.SetAttributes(attribute.Int("session.responses", len(attempt.Responses)))
	o.archive(attempt)
	return nil
}

// RunPart1 asks every introduction question once. Answers with no speech
// are skipped.
func (o *Orchestrator) RunPart1(ctx context.Context) ([]model.ResponseRecord, error) {
	ctx, span := tracer.Start(ctx, "session.part1")
	defer span.End()

	o.console.Header(appI18n.T(ctx, "Part1Title"))
	var records []model.ResponseRecord
	for _, q := range o.bank.Introduction {
		o.printQuestion(ctx, q.Text)
		rec, err := o.listen(ctx, q.Text)
		if err != nil {
			return nil, err
		}
		if rec.Empty() {
			o.console.Println(appI18n.T(ctx, "NoSpeech"))
		} else {
			o.printTranscript(ctx, rec.Transcript)
			records = append(records, rec)
		}
		if err := o.pause(ctx); err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.Int("session.records", len(records)))
	return records, nil
}

// RunPart2 shows the cue card, waits for the candidate and records the long
// turn. It always returns one record, possibly empty.
func (o *Orchestrator) RunPart2(ctx context.Context) (model.ResponseRecord, error) {
	ctx, span := tracer.Start(ctx, "session.part2")
	defer span.End()

	card := o.bank.CueCard
	o.console.Header(appI18n.T(ctx, "Part2Title"))
	o.console.Println(appI18n.Td(ctx, "Topic", map[string]any{"Text": card.Topic}))
	o.console.Println(appI18n.T(ctx, "TalkAbout"))
	for _, p := range card.Points {
		o.console.Println("-", p)
	}
	o.console.Println(appI18n.T(ctx, "PrepareTime"))
	if err := o.console.WaitForEnter(ctx, appI18n.T(ctx, "ReadyToSpeak")); err != nil {
		return model.ResponseRecord{}, fmt.Errorf("wait for candidate: %w", err)
	}

	rec, err := o.listen(ctx, card.Topic)
	if err != nil {
		return model.ResponseRecord{}, err
	}
	o.printTranscript(ctx, rec.Transcript)
	if err := o.pause(ctx); err != nil {
		return model.ResponseRecord{}, err
	}
	return rec, nil
}

// RunPart3 runs the two discussion turns. Each question is generated by the
// examiner from its seed. Both turns produce a record.
func (o *Orchestrator) RunPart3(ctx context.Context) ([]model.ResponseRecord, error) {
	ctx, span := tracer.Start(ctx, "session.part3")
	defer span.End()

	o.console.Header(appI18n.T(ctx, "Part3Title"))
	o.console.Println(appI18n.T(ctx, "DiscussionIntro"))

	records := make([]model.ResponseRecord, 0, len(o.bank.Discussion))
	for i, seed := range o.bank.Discussion {
		question, err := o.examiner.Complete(ctx, seed)
		if err != nil {
			return nil, fmt.Errorf("discussion question %d: %w", i+1, err)
		}
		question = strings.TrimSpace(question)
		o.console.Println(appI18n.Td(ctx, "Examiner", map[string]any{"Text": question}))

		rec, err := o.listen(ctx, question)
		if err != nil {
			return nil, err
		}
		o.printTranscript(ctx, rec.Transcript)
		records = append(records, rec)
		if err := o.pause(ctx); err != nil {
			return nil, err
		}
	}

	o.console.Println(appI18n.T(ctx, "TestComplete"))
	return records, nil
}

// RunPractice walks the practice bank, scoring each answer immediately,
// until the candidate declines to continue or the bank runs out.
func (o *Orchestrator) RunPractice(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session.run_practice")
	defer span.End()

	attempt := model.Attempt{ID: o.newID(), Mode: model.ModePractice, StartedAt: o.now()}
	defer func() {
		span.SetAttributes(attribute.Int("session.responses", len(attempt.Responses)))
		if len(attempt.Responses) == 0 {
			return
		}
		attempt.FinishedAt = o.now()
		o.archive(attempt)
	}()

	o.console.Header(appI18n.T(ctx, "PracticeMode"))
	for _, q := range o.bank.Practice {
		o.printQuestion(ctx, q.Text)
		if err := o.console.WaitForEnter(ctx, appI18n.T(ctx, "ReadyToSpeak")); err != nil {
			return fmt.Errorf("wait for candidate: %w", err)
		}
		rec, err := o.listen(ctx, q.Text)
		if err != nil {
			return err
		}
		if rec.Empty() {
			o.console.Println(appI18n.T(ctx, "NoSpeech"))
			continue
		}
		o.printTranscript(ctx, rec.Transcript)

		res, err := o.scorer.ScoreResponse(ctx, rec.Transcript, rec.Confidence)
		if err != nil {
			return fmt.Errorf("score practice answer: %w", err)
		}
		attempt.Responses = append(attempt.Responses, scored(model.PartPractice, len(attempt.Responses), rec, res))
		o.console.Println(appI18n.Td(ctx, "ExaminerFeedback", map[string]any{"Text": res.Feedback}))
		o.console.Println(appI18n.Td(ctx, "Scores", map[string]any{"Scores": res.Scores.String()}))

		more, err := o.console.Confirm(ctx, appI18n.T(ctx, "ContinuePrompt"))
		if err != nil {
			return fmt.Errorf("read answer: %w", err)
		}
		if !more {
			o.console.Println(appI18n.T(ctx, "ExitPractice"))
			return nil
		}
	}
	o.console.Println(appI18n.T(ctx, "PracticeExhausted"))
	return nil
}

func (o *Orchestrator) printQuestion(ctx context.Context, text string) {
	wrapped := console.WrapWords(text, console.WordsPerLine)
	o.console.Println(appI18n.Td(ctx, "Question", map[string]any{"Text": wrapped}))
}

func (o *Orchestrator) printTranscript(ctx context.Context, text string) {
	wrapped := console.WrapWords(text, console.WordsPerLine)
	o.console.Println(appI18n.Td(ctx, "YouSaid", map[string]any{"Text": wrapped}))
}

func (o *Orchestrator) listen(ctx context.Context, question string) (model.ResponseRecord, error) {
	o.console.Muted(appI18n.T(ctx, "Listening"))
	res, err := o.stt.Transcribe(ctx)
	if err != nil {
		return model.ResponseRecord{}, fmt.Errorf("transcribe: %w", err)
	}
	return model.ResponseRecord{
		Question:   question,
		Transcript: strings.TrimSpace(res.Text),
		Confidence: res.Confidence,
	}, nil
}

func (o *Orchestrator) pause(ctx context.Context) error {
	return o.sleep(ctx, o.opts.Pause)
}

func (o *Orchestrator) archive(a model.Attempt) {
	if o.opts.Archive == nil {
		return
	}
	if err := o.opts.Archive.SaveAttempt(a); err != nil {
		slog.Warn("failed to archive attempt", "id", a.ID, "mode", a.Mode, "error", err)
		return
	}
	slog.Info("attempt archived", "id", a.ID, "mode", a.Mode, "responses", len(a.Responses))
}

func scored(part model.Part, i int, rec model.ResponseRecord, res model.FeedbackResult) model.ScoredResponse {
	return model.ScoredResponse{
		Part:       part,
		Seq:        i + 1,
		Question:   rec.Question,
		Transcript: rec.Transcript,
		Confidence: rec.Confidence,
		Feedback:   res.Feedback,
		Scores:     res.Scores,
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
