package gallery

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCaseNotOpen is returned when a registry lookup misses.
var ErrCaseNotOpen = errors.New("case not open")

// Registry tracks the live controller for each open case. One process
// can have several cases open concurrently; each gets exactly one
// controller.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]*Controller
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		controllers: make(map[string]*Controller),
	}
}

// Put registers the controller for its case. Registering the same case
// twice is a programming error and returns an error rather than
// silently replacing the live controller.
func (r *Registry) Put(ctrl *Controller) error {
	if ctrl == nil {
		return fmt.Errorf("controller cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.controllers[ctrl.CaseID()]; exists {
		return fmt.Errorf("case %q already registered", ctrl.CaseID())
	}
	r.controllers[ctrl.CaseID()] = ctrl
	return nil
}

// Get returns the controller for a case.
func (r *Registry) Get(caseID string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctrl, ok := r.controllers[caseID]
	if !ok {
		return nil, fmt.Errorf("case %q: %w", caseID, ErrCaseNotOpen)
	}
	return ctrl, nil
}

// Remove deregisters a case and closes its controller.
func (r *Registry) Remove(caseID string) error {
	r.mu.Lock()
	ctrl, ok := r.controllers[caseID]
	delete(r.controllers, caseID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("case %q: %w", caseID, ErrCaseNotOpen)
	}
	return ctrl.Close()
}

// CaseIDs returns the identifiers of all open cases.
func (r *Registry) CaseIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.controllers))
	for id := range r.controllers {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of open cases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}
