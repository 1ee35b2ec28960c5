package domain

import (
	"encoding/json"
	"time"
)

// TicketTemplate is the stored, versioned schema document binding a ticket
// type to a workflow pattern, its parameters and its lifecycle hooks.
// Templates referenced by tickets are immutable; removal is a soft delete.
type TicketTemplate struct {
	ID         string
	TicketType string
	Document   json.RawMessage
	CreatedAt  time.Time
	DeletedAt  *time.Time
}

// Contract is the peripheral business record some hooks consume. Only the
// fields the hook preconditions need are modeled here.
type Contract struct {
	ID         string
	TenantID   string
	TicketID   string
	Status     ContractStatus
	CreatedAt  time.Time
	CanceledAt *time.Time
}

// ContractStatus enumerates contract lifecycle states.
type ContractStatus string

const (
	ContractActive   ContractStatus = "ACTIVE"
	ContractCanceled ContractStatus = "CANCELED"
)
