// Package config assembles the runtime configuration from flags, the
// environment, an optional ielts.yaml file and a local .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/ielts/internal/llm"
	"github.com/pavelanni/ielts/internal/recording"
	"github.com/pavelanni/ielts/internal/report"
	"github.com/pavelanni/ielts/internal/transcriber"
)

const (
	EnvPrefix      = "IELTS"
	ConfigName     = "ielts"
	DefaultDBPath  = "ielts.db"
	DefaultPause   = 2 * time.Second
	DefaultLLMURL  = "https://api.openai.com/v1"
	DefaultLLMName = "gpt-4o-mini"
)

// Config is everything an exam run needs.
type Config struct {
	LLM           llm.Config
	STT           transcriber.Config
	Recording     recording.Config
	UILang        string
	DBPath        string
	ReportPath    string
	QuestionsPath string
	TraceFile     string
	Pause         time.Duration
}

// RegisterFlags adds the exam flags to f.
func RegisterFlags(f *pflag.FlagSet) {
	stt := transcriber.DefaultConfig()
	rec := recording.DefaultConfig()

	f.String("llm-url", DefaultLLMURL, "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the examiner LLM (or set OPENAI_API_KEY)")
	f.String("llm-model", DefaultLLMName, "Examiner LLM model name")
	f.String("stt-url", stt.BaseURL, "Streaming speech-to-text websocket base URL")
	f.String("stt-path", stt.Path, "Streaming speech-to-text endpoint path")
	f.String("stt-key", "", "Speech-to-text API key (or set DEEPGRAM_API_KEY)")
	f.String("stt-model", stt.Model, "Speech-to-text model")
	f.String("language", stt.Language, "Spoken language code for transcription")
	f.String("recorder", rec.Backend, "Audio capture backend (pw-record, arecord)")
	f.String("audio-device", "", "Capture device or PipeWire target (empty = default)")
	f.Duration("max-utterance", stt.MaxUtterance, "Longest answer recorded per question")
	f.Duration("finalize-timeout", stt.FinalizeTimeout, "How long to wait for the final transcript")
	f.Duration("pause", DefaultPause, "Pause between questions")
	f.String("questions", "", "YAML file overriding the built-in question bank")
	f.String("report", report.DefaultPath, "Output path for the PDF feedback report")
	f.String("db", DefaultDBPath, "SQLite archive path (empty disables the archive)")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("trace-file", "", "Append OpenTelemetry spans to this file")
}

// NewViper binds flags, environment and the optional config file to a
// fresh viper instance. Variables from envFiles (default ".env") are loaded
// first without overriding the real environment.
func NewViper(flags *pflag.FlagSet, envFiles ...string) *viper.Viper {
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	v := viper.New()
	_ = v.BindPFlags(flags)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm-key", EnvPrefix+"_LLM_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("stt-key", EnvPrefix+"_STT_KEY", "DEEPGRAM_API_KEY")

	v.SetConfigName(ConfigName)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/ielts")
	v.AddConfigPath("/etc/ielts")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	stt := transcriber.DefaultConfig()
	stt.BaseURL = v.GetString("stt-url")
	stt.Path = v.GetString("stt-path")
	stt.APIKey = v.GetString("stt-key")
	stt.Model = v.GetString("stt-model")
	stt.Language = v.GetString("language")
	stt.MaxUtterance = v.GetDuration("max-utterance")
	stt.FinalizeTimeout = v.GetDuration("finalize-timeout")

	rec := recording.DefaultConfig()
	rec.Backend = v.GetString("recorder")
	rec.Device = v.GetString("audio-device")
	stt.SampleRate = rec.SampleRate
	stt.Channels = rec.Channels

	cfg := Config{
		LLM: llm.Config{
			BaseURL:      v.GetString("llm-url"),
			APIKey:       v.GetString("llm-key"),
			Model:        v.GetString("llm-model"),
			SystemPrompt: llm.DefaultSystemPrompt,
		},
		STT:           stt,
		Recording:     rec,
		UILang:        v.GetString("lang"),
		DBPath:        v.GetString("db"),
		ReportPath:    v.GetString("report"),
		QuestionsPath: v.GetString("questions"),
		TraceFile:     v.GetString("trace-file"),
		Pause:         v.GetDuration("pause"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that would make an exam run fail.
func (c Config) Validate() error {
	switch {
	case c.LLM.Model == "":
		return fmt.Errorf("llm-model is required")
	case c.STT.APIKey == "":
		return fmt.Errorf("speech-to-text API key is required: set --stt-key or DEEPGRAM_API_KEY")
	case c.STT.BaseURL == "":
		return fmt.Errorf("stt-url is required")
	case c.STT.MaxUtterance <= 0:
		return fmt.Errorf("max-utterance must be positive, got %s", c.STT.MaxUtterance)
	case c.STT.FinalizeTimeout <= 0:
		return fmt.Errorf("finalize-timeout must be positive, got %s", c.STT.FinalizeTimeout)
	case c.Pause < 0:
		return fmt.Errorf("pause must not be negative, got %s", c.Pause)
	case c.ReportPath == "":
		return fmt.Errorf("report path is required")
	}
	switch c.Recording.Backend {
	case recording.BackendPipeWire, recording.BackendALSA:
	default:
		return fmt.Errorf("unsupported recorder %q (want %s or %s)",
			c.Recording.Backend, recording.BackendPipeWire, recording.BackendALSA)
	}
	return nil
}
