package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/ielts/internal/config"
	"github.com/pavelanni/ielts/internal/console"
	"github.com/pavelanni/ielts/internal/handler"
	appI18n "github.com/pavelanni/ielts/internal/i18n"
	"github.com/pavelanni/ielts/internal/llm"
	"github.com/pavelanni/ielts/internal/questions"
	"github.com/pavelanni/ielts/internal/recording"
	"github.com/pavelanni/ielts/internal/scoring"
	"github.com/pavelanni/ielts/internal/session"
	"github.com/pavelanni/ielts/internal/store"
	"github.com/pavelanni/ielts/internal/telemetry"
	"github.com/pavelanni/ielts/internal/transcriber"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ielts",
		Short:        "IELTS speaking test simulator",
		Version:      version,
		SilenceUsage: true,
		RunE:         runExam,
	}
	f := root.Flags()
	config.RegisterFlags(f)
	addLogFlags(root, "warn")

	root.AddCommand(historyCmd(), exportCmd(), serveCmd())
	return root
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived attempts",
		RunE:  runHistory,
	}
	f := cmd.Flags()
	f.String("db", config.DefaultDBPath, "SQLite archive path")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	addLogFlags(cmd, "warn")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived attempts as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", config.DefaultDBPath, "SQLite archive path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd, "info")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve archived attempts and reports over HTTP",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", config.DefaultDBPath, "SQLite archive path")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ielts)")
	addLogFlags(cmd, "info")
	return cmd
}

func addLogFlags(cmd *cobra.Command, level string) {
	f := cmd.Flags()
	f.String("log-level", level, "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelWarn
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

func runExam(cmd *cobra.Command, _ []string) error {
	v := config.NewViper(cmd.Flags())
	setupLogging(v)

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appI18n.Init("en"); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx = appI18n.WithLanguage(ctx, cfg.UILang)

	shutdown, err := telemetry.Setup(ctx, "ielts", version, cfg.TraceFile)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	llmClient, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if err := llmClient.Ping(ctx); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)

	bank := questions.Default()
	if cfg.QuestionsPath != "" {
		bank, err = questions.Load(cfg.QuestionsPath)
		if err != nil {
			return fmt.Errorf("load questions: %w", err)
		}
	}

	opts := session.Options{Pause: cfg.Pause, ReportPath: cfg.ReportPath}
	if cfg.DBPath != "" {
		db, err := store.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		opts.Archive = db
	}

	stt := transcriber.New(cfg.STT, recording.NewRecorder(cfg.Recording))
	term := console.New(os.Stdin, os.Stdout)
	orch := session.New(term, stt, llmClient, scoring.New(llmClient), bank, opts)

	slog.Info("starting session",
		"llm_model", cfg.LLM.Model,
		"stt_model", cfg.STT.Model,
		"recorder", cfg.Recording.Backend,
		"lang", cfg.UILang,
		"db", cfg.DBPath,
	)
	return orch.Run(ctx)
}

func openArchive(cmd *cobra.Command) (*store.Store, *viper.Viper, error) {
	v := config.NewViper(cmd.Flags())
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return db, v, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	db, v, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := appI18n.Init("en"); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLanguage(cmd.Context(), v.GetString("lang"))

	attempts, err := db.ListAttempts()
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(attempts) == 0 {
		fmt.Fprintln(out, appI18n.T(ctx, "NoAttempts"))
		return nil
	}
	fmt.Fprintln(out, appI18n.Tp(ctx, "AttemptsRecorded", len(attempts)))
	for _, a := range attempts {
		fmt.Fprintf(out, "%s  %-8s  %s  %3d  %s\n",
			a.ID, a.Mode, a.FinishedAt.Local().Format("2006-01-02 15:04"), a.ResponseCount, a.ReportPath)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	db, v, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.ExportAll(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("export attempts: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	slog.Info("exported attempts", "count", export.Count, "output", outPath)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	db, v, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h := handler.New(db, basePath)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	slog.Info("starting server", "addr", addr, "db", v.GetString("db"), "lang", lang, "base_path", basePath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
