// Package web serves the xlmatch app shell over a JSON HTTP API.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kokistudios/xlmatch/internal/app"
	"github.com/kokistudios/xlmatch/internal/record"
	"github.com/kokistudios/xlmatch/internal/sheet"
)

const (
	defaultMaxUpload = 32 << 20
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Options configures a Server.
type Options struct {
	Logger *log.Logger
	// MaxUpload caps multipart request bodies in bytes.
	MaxUpload int64
	// ConfirmWindow is reported to clients when a destructive call needs repeating.
	ConfirmWindow time.Duration
}

type Server struct {
	app       *app.App
	logger    *log.Logger
	maxUpload int64
	window    time.Duration
}

func New(a *app.App, opts Options) *Server {
	s := &Server{app: a, logger: opts.Logger, maxUpload: opts.MaxUpload, window: opts.ConfirmWindow}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUpload
	}
	if s.window <= 0 {
		s.window = 3 * time.Second
	}
	return s
}

// Handler returns the complete router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the API routes on r.
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/search", s.handleSearch)
		r.Get("/export", s.handleExport)

		r.Put("/reference", s.handleLoadReference)
		r.Delete("/reference", s.handleReset)

		r.Post("/results", s.handleAdd)
		r.Post("/results/batch", s.handleBatch)
		r.Delete("/results", s.handleClear)
		r.Delete("/results/{id}", s.handleRemove)
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http api stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "took", time.Since(start))
	})
}

// stateResponse is Snapshot plus the armed destructive actions.
type stateResponse struct {
	app.Snapshot
	PendingClear   bool `json:"pending_clear"`
	PendingReset   bool `json:"pending_reset"`
	PendingReplace bool `json:"pending_replace"`
}

func (s *Server) state() stateResponse {
	return stateResponse{
		Snapshot:       s.app.Snapshot(),
		PendingClear:   s.app.Pending(app.ActionClear),
		PendingReset:   s.app.Pending(app.ActionReset),
		PendingReplace: s.app.Pending(app.ActionReplace),
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	m, ok := s.app.Preview(r.URL.Query().Get("q"))
	resp := struct {
		Found bool           `json:"found"`
		Match *record.Record `json:"match,omitempty"`
	}{Found: ok}
	if ok {
		resp.Match = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term *string `json:"term"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}

	var res app.AddResult
	if req.Term == nil {
		res = s.app.ConfirmPreview()
	} else {
		res = s.app.AddTerm(*req.Term)
	}
	switch {
	case !res.Found:
		writeError(w, http.StatusNotFound, errors.New("no match"))
	case res.Inserted:
		writeJSON(w, http.StatusCreated, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	removed := s.app.Remove(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.app.RequestClear(); err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	if err := s.app.RequestReset(); err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleLoadReference(w http.ResponseWriter, r *http.Request) {
	rows, err := s.readUpload(w, r)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	n, err := s.app.RequestReplace(rows)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": n, "status": s.app.Status()})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	rows, err := s.readUpload(w, r)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	added, err := s.app.ImportBatchRows(rows)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"added":   len(added),
		"total":   len(s.app.Results()),
		"results": added,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	name, err := s.app.ExportTo(&buf)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// readUpload decodes the spreadsheet in the multipart "file" field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]record.Row, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, errBadUpload{fmt.Errorf("expected a multipart upload: %w", err)}
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, errBadUpload{fmt.Errorf("missing \"file\" field: %w", err)}
	}
	defer f.Close()
	return sheet.ReadFrom(f, hdr.Filename)
}

type errBadUpload struct{ error }

func (e errBadUpload) Unwrap() error { return e.error }

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var bad errBadUpload
	switch {
	case errors.As(err, &bad), errors.Is(err, sheet.ErrRead):
		return http.StatusBadRequest
	case errors.Is(err, sheet.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, record.ErrEmptyReferenceData), errors.Is(err, app.ErrNoNewMatches):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrConfirmationRequired),
		errors.Is(err, app.ErrBusy),
		errors.Is(err, app.ErrNoReferenceData),
		errors.Is(err, app.ErrEmptyLedger):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= 500 {
		s.logger.Error("request failed", "err", err)
	}
	body := map[string]any{"error": err.Error()}
	if errors.Is(err, app.ErrConfirmationRequired) {
		body["confirm_within_seconds"] = int(s.window / time.Second)
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
