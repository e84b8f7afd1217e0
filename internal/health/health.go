// Package health serves the liveness and readiness probes of the ops server.
//
// /healthz answers 200 while the process serves HTTP. /readyz answers 200
// once the run is wired ([Handler.SetReady]) and every [Checker] passes.
// Both return a [Report] as JSON.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// checkTimeout bounds one checker.
const checkTimeout = 5 * time.Second

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// startupCheck is the report key used until SetReady(true).
const startupCheck = "startup"

var errNotReady = errors.New("still starting")

// Checker probes one dependency: the lexicon, the result store, a provider
// chain. Check must return promptly once ctx is done.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Report is the probe body. Checks maps each checker name to "ok" or
// "fail: <reason>".
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// OK reports whether every check passed.
func (r Report) OK() bool { return r.Status == statusOK }

// Failed returns the names of failing checks in sorted order.
func (r Report) Failed() []string {
	var out []string
	for name, v := range r.Checks {
		if v != statusOK {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Handler serves the probes. Checkers are fixed at construction; readiness
// may be toggled at any time.
type Handler struct {
	checkers []Checker
	ready    atomic.Bool
}

// New returns a Handler that is not ready yet.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers)}
}

// SetReady marks the handler ready or not. The CLI clears it again while
// shutting down.
func (h *Handler) SetReady(ready bool) { h.ready.Store(ready) }

// Check runs every checker concurrently, each under its own [checkTimeout],
// and folds the outcome into a [Report].
func (h *Handler) Check(ctx context.Context) Report {
	errs := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Go(func() {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			errs[i] = c.Check(cctx)
		})
	}
	wg.Wait()

	rep := Report{Status: statusOK, Checks: make(map[string]string, len(h.checkers)+1)}
	mark := func(name string, err error) {
		if err == nil {
			rep.Checks[name] = statusOK
			return
		}
		rep.Status = statusFail
		rep.Checks[name] = statusFail + ": " + err.Error()
	}
	if !h.ready.Load() {
		mark(startupCheck, errNotReady)
	}
	for i, c := range h.checkers {
		mark(c.Name, errs[i])
	}
	return rep
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: statusOK})
}

// Readyz is the readiness probe. It answers 503 with the failing checks.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	code := http.StatusOK
	if !rep.OK() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
