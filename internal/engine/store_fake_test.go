package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// fakeTxKey marks a context as running inside a fakeStore transaction, the
// way the Postgres store carries its pgx.Tx.
type fakeTxKey struct{}

// fakeStore is an in-memory TicketStore with the same compare-and-swap
// semantics as the Postgres implementation.
type fakeStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	txCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tickets: make(map[string]*domain.Ticket)}
}

// RunInTx snapshots the store and restores it when fn fails, so partial
// writes inside a failed transaction do not survive. Nested calls join the
// enclosing transaction.
func (s *fakeStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(fakeTxKey{}).(int); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	s.txCount++
	txID := s.txCount
	snapshot := make(map[string]*domain.Ticket, len(s.tickets))
	for id, ticket := range s.tickets {
		snapshot[id] = copyTicket(ticket)
	}
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, txID)); err != nil {
		s.mu.Lock()
		s.tickets = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *fakeStore) CreateTicketWithWorkflows(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[ticket.ID]; exists {
		return apperrors.NewDuplicate("ticket", map[string]any{"ticket_id": ticket.ID})
	}
	s.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (s *fakeStore) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return copyTicket(ticket), nil
}

func (s *fakeStore) GetActiveWorkflow(_ context.Context, ticketID string) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, nil
	}
	for i := range ticket.Workflows {
		if ticket.Workflows[i].State == domain.RowActive {
			row := ticket.Workflows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CloseAndActivate(_ context.Context, ticketID, closeRowID, activateRowID string, confirmer domain.Confirmer, confirmedAt time.Time, additionalData map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}

	closeRow := findRow(ticket, closeRowID)
	if closeRow == nil {
		return apperrors.NewNotFound("workflow", map[string]any{"workflow_id": closeRowID})
	}
	if closeRow.State != domain.RowActive {
		return apperrors.NewInvalidStatus("workflow row is no longer active",
			map[string]any{"workflow_id": closeRowID})
	}
	activateRow := findRow(ticket, activateRowID)
	if activateRow == nil || activateRow.State != domain.RowNonActive {
		return apperrors.NewNotFound("workflow", map[string]any{"workflow_id": activateRowID})
	}

	closeRow.State = domain.RowClosed
	closeRow.ConfirmerID = &confirmer.ID
	closeRow.ConfirmerName = &confirmer.Name
	closeRow.ConfirmedAt = &confirmedAt
	closeRow.AdditionalData = additionalData

	activateRow.State = domain.RowActive
	activateRow.ConfirmerID = &confirmer.ID
	activateRow.ConfirmerName = &confirmer.Name
	activateRow.ConfirmedAt = &confirmedAt
	activateRow.AdditionalData = additionalData
	return nil
}

func (s *fakeStore) AppendErrorRow(_ context.Context, ticketID string, confirmer domain.Confirmer, confirmedAt time.Time, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	for i := range ticket.Workflows {
		if ticket.Workflows[i].State == domain.RowActive {
			ticket.Workflows[i].State = domain.RowClosed
		}
	}
	ticket.Workflows = append(ticket.Workflows, domain.Workflow{
		ID:            uuid.NewString(),
		TicketID:      ticketID,
		StatusCode:    domain.StatusError,
		StatusDetail:  domain.Status{Code: domain.StatusError, Names: map[string]string{"Default": "Error"}},
		State:         domain.RowActive,
		ConfirmerID:   &confirmer.ID,
		ConfirmerName: &confirmer.Name,
		ConfirmedAt:   &confirmedAt,
		AdditionalData: map[string]any{
			"error": message,
		},
	})
	return nil
}

func (s *fakeStore) ListTickets(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if filter.TenantID != nil && ticket.TenantID != *filter.TenantID {
			continue
		}
		result = append(result, *copyTicket(ticket))
	}
	return result, nil
}

func findRow(ticket *domain.Ticket, rowID string) *domain.Workflow {
	for i := range ticket.Workflows {
		if ticket.Workflows[i].ID == rowID {
			return &ticket.Workflows[i]
		}
	}
	return nil
}

func copyTicket(ticket *domain.Ticket) *domain.Ticket {
	clone := *ticket
	clone.Workflows = append([]domain.Workflow(nil), ticket.Workflows...)
	return &clone
}
