package domain

import "time"

// RowState enumerates workflow row lifecycle states.
type RowState int

const (
	RowNonActive RowState = 0
	RowActive    RowState = 1
	RowClosed    RowState = 2
)

// StatusNone is the synthetic start state of every workflow pattern. It is
// never persisted as a workflow row.
const StatusNone = "none"

// StatusError is the status code of the synthetic row appended when a hook
// fails after a transition already committed.
const StatusError = "error"

// Ticket is one business request progressing through a workflow. TicketDetail
// is captured once at creation and treated as read-only business data from
// that point on.
type Ticket struct {
	ID         string
	TemplateID string
	TicketType string
	TenantID   string
	TenantName string
	OwnerID    string
	OwnerName  string
	OwnerAt    time.Time
	Detail     map[string]any
	Workflows  []Workflow
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ActiveWorkflow returns the single ACTIVE row, or nil.
func (t *Ticket) ActiveWorkflow() *Workflow {
	for i := range t.Workflows {
		if t.Workflows[i].State == RowActive {
			return &t.Workflows[i]
		}
	}
	return nil
}

// WorkflowByStatus returns the row holding the given status code, or nil.
func (t *Ticket) WorkflowByStatus(code string) *Workflow {
	for i := range t.Workflows {
		if t.Workflows[i].StatusCode == code {
			return &t.Workflows[i]
		}
	}
	return nil
}

// Workflow is one status-slot of a ticket's lifecycle. All slots are
// materialized at ticket creation; StatusDetail is a denormalized snapshot of
// the pattern node so later authorization does not depend on the live,
// possibly-changed pattern.
type Workflow struct {
	ID             string
	TicketID       string
	StatusCode     string
	StatusDetail   Status
	State          RowState
	ConfirmerID    *string
	ConfirmerName  *string
	ConfirmedAt    *time.Time
	AdditionalData map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
