// Package health provides readiness state tracking and HTTP health check handlers.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// State constants for the readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

const probeTimeout = 5 * time.Second

// Pinger reports whether the configured databases are reachable.
type Pinger interface {
	DatabaseNames() []string
	Ping(ctx context.Context, database string) error
}

// Checker tracks the readiness state of the gateway and, when given a
// Pinger, reports per-database connectivity on the readiness endpoint.
// It is safe for concurrent use.
type Checker struct {
	state  atomic.Int32
	pinger Pinger
}

// NewChecker creates a Checker in the Starting state. pinger may be nil,
// in which case readiness reflects only the state machine.
func NewChecker(pinger Pinger) *Checker {
	return &Checker{pinger: pinger}
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is Ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// healthResponse is the JSON body returned by health endpoints.
type healthResponse struct {
	Status    string            `json:"status"`
	Databases map[string]string `json:"databases,omitempty"`
}

// LivenessHandler returns an http.HandlerFunc that always responds 200 OK.
// Use this for K8s livenessProbe (/healthz).
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// ReadinessHandler returns an http.HandlerFunc that responds 200 when ready
// and 503 when starting or draining. When a Pinger is configured the body
// carries a reachability entry per database; an unreachable database is
// reported but does not fail readiness, since a single broken backend should
// not take the whole gateway out of rotation.
// Use this for K8s readinessProbe (/readyz).
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: c.State()})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:    c.State(),
			Databases: c.probeDatabases(r.Context()),
		})
	}
}

// probeDatabases pings every configured database and maps each to "ok" or
// its error text. Returns nil when no Pinger is configured.
func (c *Checker) probeDatabases(ctx context.Context) map[string]string {
	if c.pinger == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	statuses := make(map[string]string)
	for _, name := range c.pinger.DatabaseNames() {
		if err := c.pinger.Ping(ctx, name); err != nil {
			statuses[name] = err.Error()
			continue
		}
		statuses[name] = "ok"
	}
	return statuses
}

func writeJSON(w http.ResponseWriter, code int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
