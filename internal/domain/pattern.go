package domain

import (
	"encoding/json"
	"fmt"
)

// WorkflowPattern is the directed graph of statuses and role-gated
// transitions shared by many ticket templates. Patterns are read-only
// reference data; nothing in the engine mutates them.
type WorkflowPattern struct {
	ID       string   `json:"id"`
	Code     string   `json:"wf_pattern_code"`
	Statuses []Status `json:"status_list"`
}

// Status is one node of the pattern graph.
type Status struct {
	Code        string            `json:"status_code"`
	Names       map[string]string `json:"status_name"`
	Transitions []Transition      `json:"next_status"`
}

// Name returns the localized status name, falling back to the Default key.
func (s *Status) Name(locale string) string {
	if name, ok := s.Names[locale]; ok && name != "" {
		return name
	}
	return s.Names["Default"]
}

// Transition is one allowed outbound edge of a status node.
type Transition struct {
	NextStatusCode string   `json:"next_status_code"`
	Roles          []string `json:"grant_role"`
}

// UnmarshalJSON accepts grant_role either as a single string or as a list.
func (t *Transition) UnmarshalJSON(data []byte) error {
	var raw struct {
		NextStatusCode string          `json:"next_status_code"`
		Roles          json.RawMessage `json:"grant_role"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.NextStatusCode = raw.NextStatusCode
	t.Roles = nil
	if len(raw.Roles) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw.Roles, &single); err == nil {
		t.Roles = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw.Roles, &many); err != nil {
		return fmt.Errorf("grant_role must be a string or a list of strings: %w", err)
	}
	t.Roles = many
	return nil
}

// Allows reports whether any of the acting roles is granted this edge.
func (t *Transition) Allows(roles []string) bool {
	for _, granted := range t.Roles {
		for _, acting := range roles {
			if granted == acting {
				return true
			}
		}
	}
	return false
}

// Find returns the status node with the given code, or nil.
func (p *WorkflowPattern) Find(code string) *Status {
	for i := range p.Statuses {
		if p.Statuses[i].Code == code {
			return &p.Statuses[i]
		}
	}
	return nil
}

// InitialStatus resolves the single real status reachable from the synthetic
// "none" start node.
func (p *WorkflowPattern) InitialStatus() (string, error) {
	start := p.Find(StatusNone)
	if start == nil {
		return "", fmt.Errorf("pattern %s has no %q start status", p.Code, StatusNone)
	}
	for _, tr := range start.Transitions {
		if tr.NextStatusCode != "" {
			return tr.NextStatusCode, nil
		}
	}
	return "", fmt.Errorf("pattern %s has no initial transition out of %q", p.Code, StatusNone)
}

// NextRoles returns the union of roles across all outbound transitions of the
// given status. Notification deliberately targets everyone who could act
// next, regardless of which edge they would take.
func (p *WorkflowPattern) NextRoles(code string) []string {
	node := p.Find(code)
	if node == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var roles []string
	for _, tr := range node.Transitions {
		for _, role := range tr.Roles {
			if _, dup := seen[role]; dup {
				continue
			}
			seen[role] = struct{}{}
			roles = append(roles, role)
		}
	}
	return roles
}
