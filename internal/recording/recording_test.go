package recording

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"
)

// fakeBackend installs an executable named like the ALSA recorder that runs script.
func fakeBackend(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script backend not supported on windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, BackendALSA)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func alsaConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendALSA
	return cfg
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"alsa", func(c *Config) { c.Backend = BackendALSA }, ""},
		{"unknown backend", func(c *Config) { c.Backend = "sox" }, "unsupported recorder backend"},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, "SampleRate"},
		{"zero channels", func(c *Config) { c.Channels = 0 }, "Channels"},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }, "BufferSize"},
		{"misaligned buffer", func(c *Config) { c.BufferSize = 3201 }, "not aligned"},
		{"zero channel buffer", func(c *Config) { c.ChannelBufferSize = 0 }, "ChannelBufferSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := NewRecorder(cfg).validateConfig()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validateConfig() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validateConfig() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildArgs(t *testing.T) {
	pw := DefaultConfig()
	pw.Device = "alsa_input.usb"
	args := NewRecorder(pw).buildArgs()
	for _, want := range []string{"--rate", "16000", "--channels", "1", "--target", "alsa_input.usb"} {
		if !slices.Contains(args, want) {
			t.Errorf("pw-record args %v missing %q", args, want)
		}
	}
	if args[len(args)-1] != "-" {
		t.Errorf("pw-record should write to stdout, args = %v", args)
	}

	alsa := alsaConfig()
	alsa.Device = "hw:1,0"
	args = NewRecorder(alsa).buildArgs()
	for _, want := range []string{"S16_LE", "-r", "16000", "-D", "hw:1,0"} {
		if !slices.Contains(args, want) {
			t.Errorf("arecord args %v missing %q", args, want)
		}
	}
}

func TestStartUnsupportedBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "sox"
	if _, _, err := NewRecorder(cfg).Start(context.Background()); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func TestStopIdleRecorder(t *testing.T) {
	r := NewRecorder(DefaultConfig())
	if err := r.Stop(); err != nil {
		t.Errorf("Stop() on idle recorder = %v", err)
	}
	r.Wait()
}

func TestCaptureUntilProcessExits(t *testing.T) {
	fakeBackend(t, "head -c 6400 /dev/zero")

	r := NewRecorder(alsaConfig())
	frames, errs, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var total int
	for f := range frames {
		total += len(f.Data)
	}
	for err := range errs {
		t.Errorf("unexpected capture error: %v", err)
	}
	r.Wait()

	if total != 6400 {
		t.Errorf("captured %d bytes, want 6400", total)
	}
	if r.IsRecording() {
		t.Error("recorder should not be recording after the process exits")
	}
}

func TestStopReleasesProcess(t *testing.T) {
	fakeBackend(t, "exec sleep 30")

	r := NewRecorder(alsaConfig())
	frames, _, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.IsRecording() {
		t.Fatal("recorder should be recording after Start")
	}
	if _, _, err := r.Start(context.Background()); err == nil {
		t.Error("second Start should fail while recording")
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for range frames {
		}
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("capture process was not released after Stop")
	}
}

func TestContextCancelReleasesProcess(t *testing.T) {
	fakeBackend(t, "exec sleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRecorder(alsaConfig())
	frames, _, err := r.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		for range frames {
		}
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("capture process was not released after cancellation")
	}
}

func TestProcessFailureIsReported(t *testing.T) {
	fakeBackend(t, "echo 'audio open error: No such file or directory' >&2; exit 1")

	r := NewRecorder(alsaConfig())
	frames, errs, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for range frames {
	}
	var got []error
	for err := range errs {
		got = append(got, err)
	}
	r.Wait()

	if len(got) != 1 {
		t.Fatalf("got %d capture errors, want 1: %v", len(got), got)
	}
	msg := got[0].Error()
	if !strings.Contains(msg, "exit status 1") || !strings.Contains(msg, "audio open error") {
		t.Errorf("capture error = %q, want exit status and stderr line", msg)
	}
}

func TestStopDoesNotReportKilledProcess(t *testing.T) {
	fakeBackend(t, "exec sleep 30")

	r := NewRecorder(alsaConfig())
	frames, errs, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for range frames {
	}
	for err := range errs {
		t.Errorf("unexpected capture error after Stop: %v", err)
	}
	r.Wait()
}
