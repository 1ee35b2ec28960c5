// Package broker hosts the hook handler framework of the workflow engine.
// Template documents name their handler by a stable string key; the set of
// valid keys is closed and registered at startup, never resolved reflectively
// from data at call time.
package broker

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/template"
	"github.com/spec-kit/ticket-workflow/internal/validation"
)

// Context carries everything a hook may inspect during one transition.
// Ticket detail is read-only business data; Values holds the payload
// submitted for this transition.
type Context struct {
	Ticket       *domain.Ticket
	Model        *template.Model
	Pattern      *domain.WorkflowPattern
	BeforeStatus string
	AfterStatus  string
	Confirmer    domain.Confirmer
	Roles        []string
	NextRoles    []string
	Values       map[string]any
}

// StatusParameters resolves which parameter list applies to this transition:
// creation parameters on the first transition, otherwise the update
// parameters tagged with the target status.
func (c *Context) StatusParameters() []template.Parameter {
	if c.BeforeStatus == "" || c.BeforeStatus == domain.StatusNone {
		return c.Model.ParametersFor("")
	}
	return c.Model.ParametersFor(c.AfterStatus)
}

// ValidationFunc is a before-hook precondition check. It runs standalone,
// before any transaction begins, so a failure leaves no persisted side
// effects.
type ValidationFunc func(ctx context.Context, hc *Context) error

// ActionFunc is a hook business action. Before-actions run inside the
// engine's transaction; after-actions run in their own transaction once the
// transition has committed.
type ActionFunc func(ctx context.Context, hc *Context) error

// HandlerSet is the resolved method table of one handler key.
type HandlerSet struct {
	Validations map[string]ValidationFunc
	Actions     map[string]ActionFunc
}

// Registry maps template-declared handler keys to handler sets.
type Registry struct {
	handlers map[string]HandlerSet
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerSet)}
}

// Register installs a handler set under a key, overwriting any previous one.
func (r *Registry) Register(key string, set HandlerSet) {
	r.handlers[key] = set
}

// Lookup returns the handler set for a key.
func (r *Registry) Lookup(key string) (HandlerSet, bool) {
	set, ok := r.handlers[key]
	return set, ok
}

// HasHandler implements template.HandlerResolver.
func (r *Registry) HasHandler(key string) bool {
	_, ok := r.handlers[key]
	return ok
}

// HasValidation implements template.HandlerResolver.
func (r *Registry) HasValidation(key, name string) bool {
	set, ok := r.handlers[key]
	if !ok {
		return false
	}
	_, ok = set.Validations[name]
	return ok
}

// HasAction implements template.HandlerResolver.
func (r *Registry) HasAction(key, name string) bool {
	set, ok := r.handlers[key]
	if !ok {
		return false
	}
	_, ok = set.Actions[name]
	return ok
}

// GeneralParamCheckName is the validation every handler set exposes for plain
// parameter checking.
const GeneralParamCheckName = "general_param_check"

// GeneralParamCheck applies the template's parameter constraints to the
// submitted values for the target status.
func GeneralParamCheck(_ context.Context, hc *Context) error {
	return validation.CheckParameters(hc.StatusParameters(), hc.Values)
}
