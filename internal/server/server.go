// Package server exposes the navigator over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/codenav/internal/auth"
	"github.com/seanblong/codenav/internal/errs"
	"github.com/seanblong/codenav/pkg/models"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Navigator is the part of navigator.Navigator the handlers use.
type Navigator interface {
	IngestRef(ctx context.Context, repo, ref string) (models.IngestResult, error)
	Query(ctx context.Context, question string, level models.Level, topK int) (models.Answer, error)
	Impact(name string) models.ImpactReport
	Status() models.Status
}

type Options struct {
	// DefaultTopK is used when a query omits top_k.
	DefaultTopK int
	// CORSOrigin is echoed in Access-Control-Allow-Origin. Empty disables
	// CORS headers.
	CORSOrigin string
	// QueryTimeout bounds the embedding call of a query. Zero means none.
	QueryTimeout time.Duration
}

type Server struct {
	nav  Navigator
	auth *auth.Authenticator
	opts Options
}

func New(nav Navigator, a *auth.Authenticator, opts Options) *Server {
	return &Server{nav: nav, auth: a, opts: opts}
}

type IngestRequest struct {
	RepoURL string `json:"repo_url"`
	Ref     string `json:"ref,omitempty"`
}

type QueryRequest struct {
	Question string `json:"question"`
	Level    string `json:"level,omitempty"`
	// TopK is a pointer so that an explicit 0 differs from an omitted value.
	TopK *int `json:"top_k,omitempty"`
}

type ImpactRequest struct {
	Name string `json:"name"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Mux returns the bare routes.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/auth/status", s.handleAuthStatus)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ingest", s.auth.Middleware(s.handleIngest))
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/impact", s.handleImpact)
	return mux
}

// Handler wraps Mux with request IDs, access logging through logger and
// CORS.
func (s *Server) Handler(logger zerolog.Logger) http.Handler {
	var h http.Handler = s.Mux()
	h = s.cors(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("dur", dur).
			Msg("http")
	})(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-ID")(h)
	return hlog.NewHandler(logger)(h)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.opts.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"enabled": s.auth.Enabled()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, r, http.StatusOK, s.nav.Status())
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req IngestRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.RepoURL) == "" {
		writeError(w, r, errs.Errorf(errs.InvalidArgument, "ingest", "repo_url is required"))
		return
	}

	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		hlog.FromRequest(r).Info().Str("subject", p.Subject).Str("repository", req.RepoURL).Msg("ingest requested")
	}
	res, err := s.nav.IngestRef(r.Context(), req.RepoURL, req.Ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req QueryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, r, errs.Errorf(errs.InvalidArgument, "query", "question is required"))
		return
	}
	level, ok := models.ParseLevel(req.Level)
	if !ok {
		writeError(w, r, errs.Errorf(errs.InvalidArgument, "query", "unknown level %q (beginner, developer, architect)", req.Level))
		return
	}
	topK := s.opts.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK < 0 {
		writeError(w, r, errs.Errorf(errs.InvalidArgument, "query", "top_k must not be negative"))
		return
	}

	ctx := r.Context()
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}
	answer, err := s.nav.Query(ctx, req.Question, level, topK)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i := range answer.Results {
		if math.IsNaN(answer.Results[i].Score) || math.IsInf(answer.Results[i].Score, 0) {
			answer.Results[i].Score = 0
		}
	}
	hlog.FromRequest(r).Debug().Str("level", string(level)).Int("top_k", topK).Int("results", len(answer.Results)).Msg("served query")
	writeJSON(w, r, http.StatusOK, answer)
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req ImpactRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, errs.Errorf(errs.InvalidArgument, "impact", "name is required"))
		return
	}
	writeJSON(w, r, http.StatusOK, s.nav.Impact(req.Name))
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, r, http.StatusMethodNotAllowed, ErrorResponse{Error: "MethodNotAllowed", Message: r.Method + " is not allowed"})
	return false
}

func decode(r *http.Request, into any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return errs.E(errs.InvalidArgument, "decode body", err)
	}
	return nil
}

// StatusFor maps an error kind onto an HTTP status. An expired deadline
// anywhere in the chain is a timeout whatever kind wraps it.
func StatusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch errs.KindOf(err) {
	case errs.InvalidArgument:
		return http.StatusBadRequest
	case errs.EmptyIndexError:
		return http.StatusConflict
	case errs.CloneError, errs.EmbeddingError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	kind := string(errs.KindOf(err))
	if kind == "" {
		kind = http.StatusText(status)
	}
	msg := err.Error()
	var e *errs.Error
	switch {
	case errors.As(err, &e) && e.Err != nil:
		msg = e.Err.Error()
	case errs.KindOf(err) == errs.EmptyIndexError:
		msg = "no repository has been ingested yet"
	}

	event := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		event = hlog.FromRequest(r).Error()
	}
	event.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, r, status, ErrorResponse{Error: kind, Message: msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("failed to encode response")
	}
}
