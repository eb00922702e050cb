// Package recording captures microphone audio through a capture subprocess.
package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// stderrGrace bounds how long the last stderr lines are awaited before the
// process is reaped.
const stderrGrace = 500 * time.Millisecond

// Supported capture backends.
const (
	BackendPipeWire = "pw-record"
	BackendALSA     = "arecord"
)

// AudioFrame is one chunk of raw s16le audio as read from the backend.
type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
}

// Config selects the capture backend and the audio format.
type Config struct {
	Backend           string
	SampleRate        int
	Channels          int
	BufferSize        int
	Device            string
	ChannelBufferSize int
}

// DefaultConfig captures 16 kHz mono s16le, 100ms per frame.
func DefaultConfig() Config {
	return Config{
		Backend:           BackendPipeWire,
		SampleRate:        16000,
		Channels:          1,
		BufferSize:        3200,
		ChannelBufferSize: 20,
	}
}

// Recorder owns at most one capture subprocess at a time.
type Recorder struct {
	config    Config
	recording atomic.Bool

	mu     sync.Mutex // guards cmd and cancel
	cmd    *exec.Cmd
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// NewRecorder creates an idle recorder for config.
func NewRecorder(config Config) *Recorder {
	return &Recorder{config: config}
}

// IsRecording reports whether a capture process is running.
func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// Start launches the capture process. Frames flow until ctx is done, Stop is
// called, or the process exits; both channels are closed afterwards.
func (r *Recorder) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	if r.recording.Load() {
		return nil, nil, fmt.Errorf("already recording")
	}

	if err := r.validateConfig(); err != nil {
		return nil, nil, err
	}

	if _, err := exec.LookPath(r.config.Backend); err != nil {
		return nil, nil, fmt.Errorf("%s not found: %w", r.config.Backend, err)
	}

	recordingCtx, cancel := context.WithCancel(ctx)

	frameCh := make(chan AudioFrame, r.config.ChannelBufferSize)
	errCh := make(chan error, 1)

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.recording.Store(true)
	r.wg.Add(1)
	go r.captureLoop(recordingCtx, frameCh, errCh)

	return frameCh, errCh, nil
}

// Stop ends the current capture. It does not wait for the process to exit;
// call Wait for that.
func (r *Recorder) Stop() error {
	if !r.recording.Load() {
		return nil
	}

	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	return nil
}

// Wait blocks until the capture process has been reaped.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) captureLoop(ctx context.Context, frameCh chan<- AudioFrame, errCh chan<- error) {
	var (
		cmd        *exec.Cmd
		stderrDone chan struct{}
		lastStderr atomic.Value
	)
	defer func() {
		// A failed exit is reported before the channels close.
		if cmd != nil {
			select {
			case <-stderrDone:
			case <-time.After(stderrGrace):
			}
			if err := cmd.Wait(); err != nil && ctx.Err() == nil {
				if line, _ := lastStderr.Load().(string); line != "" {
					err = fmt.Errorf("%w: %s", err, line)
				}
				r.emitErr(errCh, fmt.Errorf("%s exited: %w", r.config.Backend, err))
			}
		}

		close(frameCh)
		close(errCh)
		r.recording.Store(false)

		r.mu.Lock()
		r.cmd = nil
		if r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}
		r.mu.Unlock()

		r.wg.Done()
	}()

	c := exec.CommandContext(ctx, r.config.Backend, r.buildArgs()...)

	stdout, err := c.StdoutPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stdout pipe: %w", err))
		return
	}

	stderr, err := c.StderrPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stderr pipe: %w", err))
		return
	}

	if err := c.Start(); err != nil {
		r.emitErr(errCh, fmt.Errorf("start %s: %w", r.config.Backend, err))
		return
	}
	cmd = c

	r.mu.Lock()
	r.cmd = c
	r.mu.Unlock()

	stderrDone = make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lastStderr.Store(line)
			slog.Debug("recorder stderr", "backend", r.config.Backend, "line", line)
		}
	}()

	buffer := make([]byte, r.config.BufferSize)
	var dropped int
	lastDropLog := time.Now()

	for {
		n, readErr := io.ReadFull(stdout, buffer)
		if n > 0 {
			frameData := make([]byte, n)
			copy(frameData, buffer[:n])

			select {
			case frameCh <- AudioFrame{Data: frameData, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			default:
				dropped++
				if time.Since(lastDropLog) > time.Second {
					slog.Warn("recorder dropped frames due to backpressure", "count", dropped)
					lastDropLog = time.Now()
					dropped = 0
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) || ctx.Err() != nil {
				return
			}
			r.emitErr(errCh, fmt.Errorf("read audio: %w", readErr))
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (r *Recorder) emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
	slog.Error("recording error", "error", err)
}

func (r *Recorder) buildArgs() []string {
	rate := strconv.Itoa(r.config.SampleRate)
	channels := strconv.Itoa(r.config.Channels)

	if r.config.Backend == BackendALSA {
		args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", channels}
		if r.config.Device != "" {
			args = append(args, "-D", r.config.Device)
		}
		return append(args, "-")
	}

	args := []string{"--format", "s16", "--rate", rate, "--channels", channels}
	if r.config.Device != "" {
		args = append(args, "--target", r.config.Device)
	}
	return append(args, "-")
}

func (r *Recorder) validateConfig() error {
	switch r.config.Backend {
	case BackendPipeWire, BackendALSA:
	default:
		return fmt.Errorf("unsupported recorder backend: %q", r.config.Backend)
	}
	if r.config.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", r.config.SampleRate)
	}
	if r.config.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", r.config.Channels)
	}
	if r.config.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", r.config.BufferSize)
	}
	if r.config.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", r.config.ChannelBufferSize)
	}
	// s16le frames are 2 bytes per sample per channel.
	if frameBytes := 2 * r.config.Channels; r.config.BufferSize%frameBytes != 0 {
		return fmt.Errorf("BufferSize %d not aligned to frame size %d", r.config.BufferSize, frameBytes)
	}
	return nil
}
