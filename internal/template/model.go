// Package template parses versioned ticket template documents into a typed,
// queryable model and validates their structural correctness before any real
// ticket is processed against them.
package template

import (
	"encoding/json"
	"fmt"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// Hook timings.
const (
	TimingBefore = "before"
	TimingAfter  = "after"
)

const maxTicketTypeLength = 64

// Hook is one template-declared lifecycle callback, keyed by the status being
// entered and its before/after timing.
type Hook struct {
	Status       string `json:"status"`
	Timing       string `json:"timing"`
	Validation   string `json:"validation,omitempty"`
	BrokerMethod string `json:"broker_method,omitempty"`
}

// HandlerResolver answers whether a handler key and its method names are
// registered. Satisfied by broker.Registry; unknown names are rejected here,
// at template load time, never at call time.
type HandlerResolver interface {
	HasHandler(key string) bool
	HasValidation(key, name string) bool
	HasAction(key, name string) bool
}

type paramBlock struct {
	Parameters []Parameter `json:"parameters"`
}

type actionBlock struct {
	HandlerKey string `json:"broker_class"`
	Hooks      []Hook `json:"broker"`
}

type document struct {
	Version    string            `json:"ticket_template_version"`
	TicketType string            `json:"ticket_type"`
	PatternID  string            `json:"wf_pattern_id"`
	Names      map[string]string `json:"ticket_template_name"`
	Create     paramBlock        `json:"create"`
	Update     paramBlock        `json:"update"`
	Action     actionBlock       `json:"action"`
}

// Model is the parsed, queryable form of one ticket template document.
type Model struct {
	doc document
}

// Parse decodes a raw template document. Structural validation is separate so
// that storage layers can round-trip documents they cannot yet validate.
func Parse(raw []byte) (*Model, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.NewSchemaError("template document is not valid JSON",
			map[string]any{"cause": err.Error()})
	}
	return &Model{doc: doc}, nil
}

// Validate checks the document shape and resolves every declared handler
// method against the registry. It is a pure check; the parsed document is
// retained for later queries regardless.
func (m *Model) Validate(resolver HandlerResolver) error {
	d := &m.doc
	if d.TicketType == "" {
		return schemaErr("ticket_type is required", nil)
	}
	if len(d.TicketType) > maxTicketTypeLength {
		return schemaErr("ticket_type exceeds maximum length",
			map[string]any{"max": maxTicketTypeLength})
	}
	if d.PatternID == "" {
		return schemaErr("wf_pattern_id is required", nil)
	}
	if d.Names["Default"] == "" {
		return schemaErr("ticket_template_name requires a Default entry", nil)
	}
	if err := checkParameters(d.Create.Parameters, false); err != nil {
		return err
	}
	if err := checkParameters(d.Update.Parameters, true); err != nil {
		return err
	}
	if d.Action.HandlerKey == "" {
		return schemaErr("action.broker_class is required", nil)
	}
	if !resolver.HasHandler(d.Action.HandlerKey) {
		return schemaErr("action.broker_class does not resolve to a registered handler",
			map[string]any{"broker_class": d.Action.HandlerKey})
	}
	for i, hook := range d.Action.Hooks {
		if hook.Status == "" {
			return schemaErr("hook entry lacks a status", map[string]any{"index": i})
		}
		switch hook.Timing {
		case TimingBefore:
			if hook.Validation == "" {
				return schemaErr("before hook lacks a validation method",
					map[string]any{"status": hook.Status})
			}
		case TimingAfter:
			if hook.BrokerMethod == "" {
				return schemaErr("after hook lacks a broker method",
					map[string]any{"status": hook.Status})
			}
		default:
			return schemaErr("hook timing must be before or after",
				map[string]any{"status": hook.Status, "timing": hook.Timing})
		}
		if hook.Validation != "" && !resolver.HasValidation(d.Action.HandlerKey, hook.Validation) {
			return schemaErr("hook validation method is not registered",
				map[string]any{"broker_class": d.Action.HandlerKey, "validation": hook.Validation})
		}
		if hook.BrokerMethod != "" && !resolver.HasAction(d.Action.HandlerKey, hook.BrokerMethod) {
			return schemaErr("hook broker method is not registered",
				map[string]any{"broker_class": d.Action.HandlerKey, "broker_method": hook.BrokerMethod})
		}
	}
	return nil
}

// ValidateAgainstPattern verifies that every hook references a status that
// exists in the pattern the template binds to.
func (m *Model) ValidateAgainstPattern(pattern *domain.WorkflowPattern) error {
	for _, hook := range m.doc.Action.Hooks {
		if pattern.Find(hook.Status) == nil {
			return schemaErr("hook references a status missing from the workflow pattern",
				map[string]any{"status": hook.Status, "pattern": pattern.Code})
		}
	}
	return nil
}

func checkParameters(params []Parameter, update bool) error {
	for i, p := range params {
		if p.Key == "" {
			return schemaErr("parameter lacks a key", map[string]any{"index": i})
		}
		if p.Labels["Default"] == "" {
			return schemaErr("parameter label requires a Default entry",
				map[string]any{"key": p.Key})
		}
		if update && p.Status == "" {
			return schemaErr("update parameter lacks an applicability status",
				map[string]any{"key": p.Key})
		}
	}
	return nil
}

func schemaErr(message string, details map[string]any) error {
	return apperrors.NewSchemaError(message, details)
}

// TicketType returns the template's ticket category.
func (m *Model) TicketType() string { return m.doc.TicketType }

// Version returns the document version string.
func (m *Model) Version() string { return m.doc.Version }

// PatternID returns the id of the bound workflow pattern.
func (m *Model) PatternID() string { return m.doc.PatternID }

// HandlerKey returns the registry key of the hook handler set.
func (m *Model) HandlerKey() string { return m.doc.Action.HandlerKey }

// Name returns the localized template display name with Default fallback.
func (m *Model) Name(locale string) string {
	if name, ok := m.doc.Names[locale]; ok && name != "" {
		return name
	}
	return m.doc.Names["Default"]
}

// ParametersFor returns the parameters applicable to a status, in declaration
// order. The empty status selects the creation parameters; otherwise the
// subset of update parameters tagged with that status is returned.
func (m *Model) ParametersFor(status string) []Parameter {
	if status == "" || status == domain.StatusNone {
		return m.doc.Create.Parameters
	}
	var applicable []Parameter
	for _, p := range m.doc.Update.Parameters {
		if p.Status == status {
			applicable = append(applicable, p)
		}
	}
	return applicable
}

// Hooks returns the full ordered hook list.
func (m *Model) Hooks() []Hook { return m.doc.Action.Hooks }

// HooksFor returns the ordered hooks registered for one status and timing.
func (m *Model) HooksFor(status, timing string) []Hook {
	var matched []Hook
	for _, hook := range m.doc.Action.Hooks {
		if hook.Status == status && hook.Timing == timing {
			matched = append(matched, hook)
		}
	}
	return matched
}

// String implements fmt.Stringer for log output.
func (m *Model) String() string {
	return fmt.Sprintf("template(%s, pattern=%s, handler=%s)", m.doc.TicketType, m.doc.PatternID, m.doc.Action.HandlerKey)
}
