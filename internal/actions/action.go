// Package actions defines the action interface for Drover: one pluggable
// implementation per action kind, invoked by the execution engine.
package actions

import (
	"context"
	"fmt"

	"github.com/fentz26/drover/internal/device"
	"github.com/fentz26/drover/internal/limiter"
	"github.com/fentz26/drover/internal/models"
)

// Request carries everything an action needs for one invocation.
type Request struct {
	Conn      device.Conn
	DeviceID  string
	Account   models.Account
	SessionID string

	// Limiter must be consulted before each destructive sub-step, and every
	// sub-step attempt must be logged through it so the ledger stays
	// authoritative regardless of the action's internal traversal.
	Limiter *limiter.Limiter

	// Set when the invocation serves a bulk job.
	Job        *models.JobDefinition
	Assignment *models.JobAssignment
	Budget     int

	// Set for post_content invocations.
	Post *models.ScheduledPost
}

// Result is the structured outcome of one action invocation. Actions return
// failures here instead of raising; only infrastructure errors surface as a
// Go error.
type Result struct {
	Success   bool   `json:"success"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Skipped   int    `json:"skipped"`
	Errored   int    `json:"errored"`
	Message   string `json:"message,omitempty"`
}

// Action is one automation capability. Implementations must be safely
// re-entrant after partial failure: re-invocation must not double-act on an
// already-processed target, which the dedup ledger enforces.
type Action interface {
	// Kind returns the action identifier.
	Kind() models.ActionKind

	// Run drives the device for this action and returns a structured outcome.
	Run(ctx context.Context, req Request) (Result, error)
}

// Registry maps action kinds to their implementations.
type Registry struct {
	byKind map[models.ActionKind]Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[models.ActionKind]Action)}
}

// Register adds an action, replacing any previous implementation of the kind.
func (r *Registry) Register(a Action) {
	r.byKind[a.Kind()] = a
}

// Get returns the action for a kind.
func (r *Registry) Get(kind models.ActionKind) (Action, error) {
	a, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("no action registered for kind %q", kind)
	}
	return a, nil
}

// Has reports whether a kind is registered.
func (r *Registry) Has(kind models.ActionKind) bool {
	_, ok := r.byKind[kind]
	return ok
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	return len(r.byKind)
}
