// Package transcriber turns one spoken answer into text by streaming
// microphone audio to a Deepgram-compatible websocket endpoint.
package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/ielts/internal/recording"
)

var tracer = otel.Tracer("github.com/pavelanni/ielts/internal/transcriber")

// Result is one finalized utterance. Empty text means nothing was heard.
type Result struct {
	Text       string
	Confidence float64
}

// Empty reports whether no speech was recognized.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// AudioSource produces raw linear16 audio frames. recording.Recorder
// satisfies it.
type AudioSource interface {
	Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error)
	Stop() error
	Wait()
}

// Config describes the streaming speech-to-text endpoint and the audio it
// receives. MaxUtterance caps how long one answer is recorded;
// FinalizeTimeout is how long to wait for the last transcript afterwards.
type Config struct {
	BaseURL         string
	Path            string
	APIKey          string
	Model           string
	Language        string
	SampleRate      int
	Channels        int
	MaxUtterance    time.Duration
	FinalizeTimeout time.Duration
}

// DefaultConfig targets Deepgram's live endpoint with 16 kHz mono audio.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "wss://api.deepgram.com",
		Path:            "/v1/listen",
		Model:           "nova-3",
		Language:        "en",
		SampleRate:      16000,
		Channels:        1,
		MaxUtterance:    60 * time.Second,
		FinalizeTimeout: 5 * time.Second,
	}
}

// StreamTranscriber opens a fresh websocket session for every Transcribe call.
type StreamTranscriber struct {
	cfg    Config
	source AudioSource
	dialer *websocket.Dialer
}

// New creates a transcriber that streams audio from source.
func New(cfg Config, source AudioSource) *StreamTranscriber {
	return &StreamTranscriber{
		cfg:    cfg,
		source: source,
		dialer: websocket.DefaultDialer,
	}
}

type closeStream struct {
	Type string `json:"type"`
}

type streamMessage struct {
	Type        string         `json:"type"`
	Channel     *streamChannel `json:"channel,omitempty"`
	IsFinal     bool           `json:"is_final,omitempty"`
	SpeechFinal bool           `json:"speech_final,omitempty"`
	Message     string         `json:"message,omitempty"`
	Description string         `json:"description,omitempty"`
}

type streamChannel struct {
	Alternatives []streamAlternative `json:"alternatives"`
}

type streamAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type outcome struct {
	result Result
	err    error
}

// Transcribe listens for a single utterance. It returns when the provider
// marks the end of speech, when the connection closes, or after the
// utterance limit plus the finalize window. The audio source and the
// websocket reader are released before it returns.
func (t *StreamTranscriber) Transcribe(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "stt.transcribe")
	defer span.End()

	wsURL, err := t.buildURL()
	if err != nil {
		return Result{}, fmt.Errorf("build websocket url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.cfg.APIKey)

	conn, resp, err := t.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			slog.Debug("stt dial rejected", "status", resp.StatusCode)
		}
		return Result{}, fmt.Errorf("websocket dial: %w", err)
	}

	outcomes := make(chan outcome, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		outcomes <- readUtterance(conn)
	}()
	defer func() {
		_ = conn.Close()
		<-readerDone
	}()

	listenCtx, cancel := context.WithTimeout(ctx, t.cfg.MaxUtterance)
	defer cancel()

	frames, errs, err := t.source.Start(listenCtx)
	if err != nil {
		return Result{}, fmt.Errorf("start audio capture: %w", err)
	}
	defer func() {
		_ = t.source.Stop()
		t.source.Wait()
	}()

	var sent int
	for {
		select {
		case o := <-outcomes:
			return t.finish(span, o)

		case f, ok := <-frames:
			if !ok {
				if err := captureErr(errs); err != nil {
					return Result{}, fmt.Errorf("audio capture: %w", err)
				}
				return t.finalize(ctx, span, conn, outcomes)
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, f.Data); err != nil {
				return Result{}, fmt.Errorf("send audio: %w", err)
			}
			sent += len(f.Data)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return Result{}, fmt.Errorf("audio capture: %w", err)

		case <-listenCtx.Done():
			slog.Debug("utterance window closed", "bytes_sent", sent)
			return t.finalize(ctx, span, conn, outcomes)
		}
	}
}

// captureErr waits for the capture source to close errs and returns the
// error it reported, if any.
func captureErr(errs <-chan error) error {
	if errs == nil {
		return nil
	}
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// finalize asks the provider to flush and waits for the last transcript.
func (t *StreamTranscriber) finalize(ctx context.Context, span trace.Span, conn *websocket.Conn, outcomes <-chan outcome) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if err := conn.WriteJSON(closeStream{Type: "CloseStream"}); err != nil {
		slog.Debug("stt close stream write failed", "error", err)
	}

	timer := time.NewTimer(t.cfg.FinalizeTimeout)
	defer timer.Stop()

	select {
	case o := <-outcomes:
		return t.finish(span, o)
	case <-timer.C:
		slog.Warn("no final transcript before timeout", "timeout", t.cfg.FinalizeTimeout)
		return Result{}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (t *StreamTranscriber) finish(span trace.Span, o outcome) (Result, error) {
	if o.err != nil {
		return Result{}, o.err
	}
	span.SetAttributes(
		attribute.Int("stt.text_length", len(o.result.Text)),
		attribute.Float64("stt.confidence", o.result.Confidence),
	)
	return o.result, nil
}

// readUtterance collects final segments until the provider reports the end
// of speech. A closed connection yields whatever was collected so far.
func readUtterance(conn *websocket.Conn) outcome {
	var (
		segments    []string
		confidences float64
	)
	collected := func() outcome {
		if len(segments) == 0 {
			return outcome{}
		}
		return outcome{result: Result{
			Text:       strings.Join(segments, " "),
			Confidence: confidences / float64(len(segments)),
		}}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("stt connection closed", "error", err, "segments", len(segments))
			return collected()
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("stt message parse error", "error", err)
			continue
		}

		switch msg.Type {
		case "Results":
			if msg.Channel != nil && len(msg.Channel.Alternatives) > 0 && msg.IsFinal {
				alt := msg.Channel.Alternatives[0]
				if text := strings.TrimSpace(alt.Transcript); text != "" {
					segments = append(segments, text)
					confidences += alt.Confidence
				}
			}
			if msg.SpeechFinal && len(segments) > 0 {
				return collected()
			}
		case "Error":
			errMsg := msg.Message
			if msg.Description != "" {
				errMsg = fmt.Sprintf("%s: %s", errMsg, msg.Description)
			}
			return outcome{err: fmt.Errorf("stt provider: %s", errMsg)}
		default:
			slog.Debug("stt message", "type", msg.Type)
		}
	}
}

func (t *StreamTranscriber) buildURL() (string, error) {
	u, err := url.Parse(t.cfg.BaseURL + t.cfg.Path)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	q.Set("model", t.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(t.cfg.SampleRate))
	q.Set("channels", strconv.Itoa(t.cfg.Channels))
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if t.cfg.Language != "" {
		q.Set("language", t.cfg.Language)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}
