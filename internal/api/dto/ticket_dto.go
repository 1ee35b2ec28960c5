package dto

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	TemplateID   string         `json:"ticket_template_id"`
	TicketDetail map[string]any `json:"ticket_detail"`
}

// TransitionRequest payload for advancing a ticket.
type TransitionRequest struct {
	BeforeStatus   string         `json:"before_status_code"`
	LastWorkflowID string         `json:"last_workflow_id"`
	AfterStatus    string         `json:"after_status_code"`
	NextWorkflowID string         `json:"next_workflow_id,omitempty"`
	AdditionalData map[string]any `json:"additional_data"`
}

// WorkflowResponse is one status-slot of a ticket.
type WorkflowResponse struct {
	ID             string         `json:"id"`
	StatusCode     string         `json:"status_code"`
	Status         int            `json:"status"`
	ConfirmerID    *string        `json:"confirmer_id,omitempty"`
	ConfirmerName  *string        `json:"confirmer_name,omitempty"`
	ConfirmedAt    *time.Time     `json:"confirmed_at,omitempty"`
	AdditionalData map[string]any `json:"additional_data,omitempty"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID         string             `json:"id"`
	TemplateID string             `json:"ticket_template_id"`
	TicketType string             `json:"ticket_type"`
	TenantID   string             `json:"tenant_id"`
	TenantName string             `json:"tenant_name"`
	OwnerID    string             `json:"owner_id"`
	OwnerName  string             `json:"owner_name"`
	OwnerAt    time.Time          `json:"owner_at"`
	Detail     map[string]any     `json:"ticket_detail"`
	Workflows  []WorkflowResponse `json:"workflows"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// FromTicket maps a domain ticket onto the response shape.
func FromTicket(ticket *domain.Ticket) TicketResponse {
	workflows := make([]WorkflowResponse, 0, len(ticket.Workflows))
	for _, row := range ticket.Workflows {
		workflows = append(workflows, WorkflowResponse{
			ID:             row.ID,
			StatusCode:     row.StatusCode,
			Status:         int(row.State),
			ConfirmerID:    row.ConfirmerID,
			ConfirmerName:  row.ConfirmerName,
			ConfirmedAt:    row.ConfirmedAt,
			AdditionalData: row.AdditionalData,
		})
	}
	return TicketResponse{
		ID:         ticket.ID,
		TemplateID: ticket.TemplateID,
		TicketType: ticket.TicketType,
		TenantID:   ticket.TenantID,
		TenantName: ticket.TenantName,
		OwnerID:    ticket.OwnerID,
		OwnerName:  ticket.OwnerName,
		OwnerAt:    ticket.OwnerAt,
		Detail:     ticket.Detail,
		Workflows:  workflows,
		CreatedAt:  ticket.CreatedAt,
		UpdatedAt:  ticket.UpdatedAt,
	}
}
