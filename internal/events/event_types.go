package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTransitionExecuted EventType = "transition_executed"
	EventTransitionFailed   EventType = "transition_failed"
)

// Event represents a workflow event emitted by the engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketType    string   `json:"ticket_type"`
	TenantID      string   `json:"tenant_id"`
	InitialStatus string   `json:"initial_status"`
	NextRoles     []string `json:"next_roles,omitempty"`
}

// TransitionExecutedPayload payload.
type TransitionExecutedPayload struct {
	TicketType   string   `json:"ticket_type"`
	BeforeStatus string   `json:"before_status"`
	AfterStatus  string   `json:"after_status"`
	ConfirmerID  string   `json:"confirmer_id"`
	NextRoles    []string `json:"next_roles,omitempty"`
}

// TransitionFailedPayload payload.
type TransitionFailedPayload struct {
	TicketType   string `json:"ticket_type"`
	BeforeStatus string `json:"before_status"`
	AfterStatus  string `json:"after_status"`
	Reason       string `json:"reason"`
}
