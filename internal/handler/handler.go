// Package handler serves archived attempts over HTTP.
package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/ielts/internal/feedback"
	appI18n "github.com/pavelanni/ielts/internal/i18n"
	"github.com/pavelanni/ielts/internal/model"
	"github.com/pavelanni/ielts/internal/report"
)

// Archive is the read side of the attempt store.
type Archive interface {
	ListAttempts() ([]model.AttemptSummary, error)
	GetAttempt(id string) (model.Attempt, error)
	DeleteAttempt(id string) error
	ExportAll(generatedAt time.Time) (model.AttemptExport, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	archive  Archive
	basePath string
	now      func() time.Time
}

// New creates a new Handler. basePath is the URL prefix the routes are
// mounted under, or empty.
func New(a Archive, basePath string) *Handler {
	return &Handler{archive: a, basePath: basePath, now: time.Now}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/export", h.handleExport)
	r.Get("/attempts/{attemptID}", h.handleAttempt)
	r.Delete("/attempts/{attemptID}", h.handleDelete)
	r.Get("/attempts/{attemptID}/report", h.handleReport)
}

type basePathKey struct{}

// BasePathMiddleware stores the URL prefix so handlers can build links.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), basePathKey{}, h.basePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func basePath(ctx context.Context) string {
	if p, ok := ctx.Value(basePathKey{}).(string); ok {
		return p
	}
	return ""
}

type attemptLink struct {
	model.AttemptSummary
	URL       string `json:"url"`
	ReportURL string `json:"report_url,omitempty"`
}

type listResponse struct {
	Message  string        `json:"message"`
	Attempts []attemptLink `json:"attempts"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.archive.ListAttempts()
	if err != nil {
		slog.Error("failed to list attempts", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	prefix := basePath(r.Context())
	resp := listResponse{Attempts: make([]attemptLink, 0, len(summaries))}
	if len(summaries) == 0 {
		resp.Message = appI18n.T(r.Context(), "NoAttempts")
	} else {
		resp.Message = appI18n.Tp(r.Context(), "AttemptsRecorded", len(summaries))
	}
	for _, s := range summaries {
		link := attemptLink{AttemptSummary: s, URL: prefix + "/attempts/" + s.ID}
		if s.Mode == model.ModeTest {
			link.ReportURL = link.URL + "/report"
		}
		resp.Attempts = append(resp.Attempts, link)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.archive.ExportAll(h.now())
	if err != nil {
		slog.Error("failed to export attempts", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="ielts_attempts.json"`)
	writeJSON(w, http.StatusOK, export)
}

func (h *Handler) handleAttempt(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAttempt(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, model.AttemptResult{Attempt: a, PartAverages: a.Averages()})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "attemptID")
	if err := h.archive.DeleteAttempt(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.notFound(w, r)
			return
		}
		slog.Error("failed to delete attempt", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAttempt(w, r)
	if !ok {
		return
	}
	if a.Mode != model.ModeTest {
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "ReportTestOnly"))
		return
	}

	// Buffer the document so a render failure can still produce a clean 500.
	var buf bytes.Buffer
	renderer := report.Renderer{CreatedAt: a.FinishedAt}
	if err := renderer.Render(&buf, report.Sections(feedback.FromAttempt(a))); err != nil {
		slog.Error("failed to render report", "id", a.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, reportFilename(a)))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write report", "id", a.ID, "error", err)
	}
}

func (h *Handler) loadAttempt(w http.ResponseWriter, r *http.Request) (model.Attempt, bool) {
	id := chi.URLParam(r, "attemptID")
	a, err := h.archive.GetAttempt(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.notFound(w, r)
			return a, false
		}
		slog.Error("failed to load attempt", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return a, false
	}
	return a, true
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "AttemptNotFound"))
}

func reportFilename(a model.Attempt) string {
	name := strings.TrimSuffix(report.DefaultPath, ".pdf")
	short := a.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s.pdf", name, short)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
