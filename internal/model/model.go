// Package model tracks the language models a request may be routed to and
// the error shapes model calls surface.
package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Model describes one selectable language model.
type Model struct {
	ID        string
	Name      string
	Family    string
	Version   string
	MaxTokens int
}

// Registry manages the models available for invocation. One model may be
// marked as the fallback used when a request carries no explicit selection.
type Registry struct {
	mu        sync.RWMutex
	models    map[string]Model
	defaultID string
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register adds or replaces a model.
func (r *Registry) Register(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.ID] = m
}

// SetDefault marks the model used when a request selects none.
func (r *Registry) SetDefault(modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[modelID]; !ok {
		return &UnavailableError{ModelID: modelID}
	}
	r.defaultID = modelID
	return nil
}

// Get retrieves a model by ID.
func (r *Registry) Get(modelID string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[modelID]
	if !ok {
		return Model{}, &UnavailableError{ModelID: modelID}
	}
	return m, nil
}

// Default returns the fallback model.
func (r *Registry) Default() (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultID == "" {
		return Model{}, errors.New("no default model configured")
	}
	m, ok := r.models[r.defaultID]
	if !ok {
		return Model{}, &UnavailableError{ModelID: r.defaultID}
	}
	return m, nil
}

// List returns all registered models sorted by ID.
func (r *Registry) List() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models
}

// UnavailableError reports that a selected model is not registered.
type UnavailableError struct {
	ModelID string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("model not available: %s", e.ModelID)
}

// Error wraps a failure raised by a model call so the coordinator can tell
// model faults apart from handler faults. Code carries the model backend's
// own classification when it has one.
type Error struct {
	Code  string
	Cause error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("model error (%s): %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("model error: %v", e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// QuotaExceededError indicates the user exhausted their model quota.
type QuotaExceededError struct {
	ModelID string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for model %s", e.ModelID)
}
