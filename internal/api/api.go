// Package api serves schedulability analysis over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/joshharrison/schedcheck/internal/analysis"
	"github.com/joshharrison/schedcheck/internal/history"
	"github.com/joshharrison/schedcheck/internal/report"
	"github.com/joshharrison/schedcheck/internal/rta"
	"github.com/joshharrison/schedcheck/internal/taskfile"
	"github.com/joshharrison/schedcheck/internal/taskset"
	"github.com/joshharrison/schedcheck/internal/ui"
)

// maxBodyBytes limits an uploaded task file.
const maxBodyBytes = 1 << 20

// Store is the part of the history store the server uses.
type Store interface {
	Record(ctx context.Context, r *report.Report) error
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Get(ctx context.Context, id string) (*report.Report, error)
}

// Defaults are applied when a request leaves a query parameter unset.
type Defaults struct {
	Discipline       report.Discipline
	Priorities       taskset.PriorityPolicy
	AllowConstrained bool
	MaxIterations    int
}

// Server handles API requests. A nil store disables the /reports routes.
type Server struct {
	store    Store
	defaults Defaults
}

// New creates a Server.
func New(store Store, d Defaults) *Server {
	if d.Discipline == "" {
		d.Discipline = report.RateMonotonic
	}
	if d.Priorities == "" {
		d.Priorities = taskset.PolicyAuto
	}
	return &Server{store: store, defaults: d}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	// Liveness; replies "Pong" and the server time in nanoseconds
	router.GET("/ping", s.ping)

	router.GET("/bound/:n", s.bound)
	router.POST("/analyze", s.analyze)

	router.GET("/reports", s.listReports)
	router.GET("/reports/:id", s.getReport)

	return router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	fmt.Fprintf(os.Stderr, "🌐 %s on http://%s\n", ui.BoldCyan("schedcheck API listening"), ln.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type errorBody struct {
	Error string `json:"error"`
	Task  string `json:"task,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ui.Warn("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: err.Error()}
	var te *taskset.TaskError
	if errors.As(err, &te) {
		body.Task = te.Task
	}
	writeJSON(w, status, body)
}

func (s *Server) ping(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	fmt.Fprintf(w, "Pong %v", time.Now().UnixNano())
}

func (s *Server) bound(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	n, err := strconv.Atoi(ps.ByName("n"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("n must be a positive integer, got %q", ps.ByName("n")))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"n":     n,
		"bound": analysis.LiuLaylandBound(n),
	})
}

func (s *Server) options(r *http.Request) (report.Options, taskset.PriorityPolicy, error) {
	q := r.URL.Query()
	opts := report.Options{
		Discipline:       s.defaults.Discipline,
		AllowConstrained: s.defaults.AllowConstrained,
		MaxIterations:    s.defaults.MaxIterations,
	}
	policy := s.defaults.Priorities

	if v := q.Get("discipline"); v != "" {
		d, err := report.ParseDiscipline(v)
		if err != nil {
			return opts, policy, err
		}
		opts.Discipline = d
	}
	if v := q.Get("priorities"); v != "" {
		p, err := taskset.ParsePolicy(v)
		if err != nil {
			return opts, policy, err
		}
		policy = p
	}
	for key, dst := range map[string]*bool{
		"allow_constrained": &opts.AllowConstrained,
		"rta":               &opts.ForceRTA,
	} {
		if v := q.Get(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return opts, policy, fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	return opts, policy, nil
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	opts, policy, err := s.options(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("task file exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}

	format := taskfile.FormatFromContentType(r.Header.Get("Content-Type"))
	doc, err := taskfile.Parse(format, body, taskfile.Options{Select: r.URL.Query().Get("select")})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if doc.Name == "" {
		doc.Name = "request"
	}

	ts, err := taskset.BuildFromRaw(doc, policy)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	rep, err := report.Generate(ts, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, analysis.ErrUnsupportedDeadlineModel) || errors.Is(err, rta.ErrNoConvergence) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}

	if s.store != nil {
		if err := s.store.Record(r.Context(), rep); err != nil {
			ui.Warn("record report %s: %v", rep.ID, err)
		}
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history is disabled"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer, got %q", v))
			return
		}
		limit = n
	}
	entries, err := s.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history is disabled"))
		return
	}
	rep, err := s.store.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rep == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("report %s not found", ps.ByName("id")))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
