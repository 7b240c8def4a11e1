// Package server exposes the store read-only over HTTP: a status page, JSON
// query endpoints and Prometheus metrics.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Options configure a Server.
type Options struct {
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Version  string
	Now      func() time.Time
}

// Server is the read-only HTTP server.
type Server struct {
	db   *database.DB
	log  logger.Logger
	opts Options
	page *template.Template
	mux  *http.ServeMux
}

// New creates a Server.
func New(db *database.DB, log logger.Logger, opts Options) (*Server, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	funcMap := template.FuncMap{"markdown": renderMarkdown}
	page, err := template.New("base.html").Funcs(funcMap).
		ParseFS(templateFS, "templates/base.html", "templates/status.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s := &Server{db: db, log: log, opts: opts, page: page, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleStatus)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	s.mux.HandleFunc("GET /api/jobs", s.handleJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	s.mux.HandleFunc("GET /api/candidates", s.handleCandidates)
	s.mux.HandleFunc("GET /api/candidates/{slug}", s.handleCandidate)
	s.mux.HandleFunc("GET /api/candidates/{slug}/flags", s.handleCandidateFlags)
	s.mux.HandleFunc("GET /api/candidates/{slug}/mentions", s.handleCandidateMentions)
	s.mux.HandleFunc("GET /api/queue", s.handleQueue)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.db.GetStats(ctx); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.db.ListJobs(r.Context(), r.URL.Query().Get("source"), limitParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(jobs))
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.db.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if job == nil {
		writeNotFound(w, "job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter database.CandidateFilter
	if office := q.Get("office"); office != "" {
		filter.Office = database.Office(office)
		if !filter.Office.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown office " + strconv.Quote(office)})
			return
		}
	}
	if slug := q.Get("party"); slug != "" {
		party, err := s.db.GetPartyBySlug(r.Context(), slug)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		if party == nil {
			writeNotFound(w, "party")
			return
		}
		filter.PartyID = party.ID
	}

	candidates, err := s.db.ListCandidates(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(candidates))
}

// candidate loads the candidate named by the slug path value, writing a
// response and returning nil when it cannot.
func (s *Server) candidate(w http.ResponseWriter, r *http.Request) *database.Candidate {
	c, err := s.db.GetCandidateBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return nil
	}
	if c == nil {
		writeNotFound(w, "candidate")
		return nil
	}
	return c
}

func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	if c := s.candidate(w, r); c != nil {
		writeJSON(w, http.StatusOK, c)
	}
}

func (s *Server) handleCandidateFlags(w http.ResponseWriter, r *http.Request) {
	c := s.candidate(w, r)
	if c == nil {
		return
	}
	flags, err := s.db.ListFlags(r.Context(), c.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(flags))
}

type mentionsResponse struct {
	News   []database.NewsMention   `json:"news"`
	Social []database.SocialMention `json:"social"`
}

func (s *Server) handleCandidateMentions(w http.ResponseWriter, r *http.Request) {
	c := s.candidate(w, r)
	if c == nil {
		return
	}
	limit := limitParam(r)
	news, err := s.db.ListNewsMentions(r.Context(), c.ID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	social, err := s.db.ListSocialMentions(r.Context(), c.ID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, mentionsResponse{News: nonNil(news), Social: nonNil(social)})
}

type queueResponse struct {
	Stats  *database.QueueStats `json:"stats"`
	Failed []database.QueueItem `json:"failed"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetQueueStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	failed, err := s.db.ListQueueItems(r.Context(), database.QueueFailed, limitParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, queueResponse{Stats: stats, Failed: nonNil(failed)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	text, err := s.statusMarkdown(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	var buf bytes.Buffer
	err = s.page.ExecuteTemplate(&buf, "base.html", map[string]any{
		"Markdown":  text,
		"Version":   s.opts.Version,
		"Generated": s.opts.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Error("Rendering status page failed", logger.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return min(n, maxLimit)
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": what + " not found"})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.log.Error("Request failed", logger.Error(err))
	writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server listening", logger.String("addr", "http://"+addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// escapeCell keeps free text from breaking a markdown table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
