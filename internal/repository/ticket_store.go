package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	TenantID    *string
	TicketType  *string
	OwnerID     *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketStore is the persistence contract the workflow engine requires. Each
// method is atomic on its own; the engine sequences the before-hook,
// transition and after-hook phases and controls transaction scope through
// RunInTx.
type TicketStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateTicketWithWorkflows(ctx context.Context, ticket *domain.Ticket) error
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	GetActiveWorkflow(ctx context.Context, ticketID string) (*domain.Workflow, error)
	CloseAndActivate(ctx context.Context, ticketID, closeRowID, activateRowID string, confirmer domain.Confirmer, confirmedAt time.Time, additionalData map[string]any) error
	AppendErrorRow(ctx context.Context, ticketID string, confirmer domain.Confirmer, confirmedAt time.Time, message string) error
	ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type ticketStore struct {
	pool *pgxpool.Pool
}

// NewTicketStore instantiates the Postgres-backed store.
func NewTicketStore(pool *pgxpool.Pool) TicketStore {
	return &ticketStore{pool: pool}
}

func (s *ticketStore) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// RunInTx executes fn inside a transaction carried on the context. Nested
// calls join the enclosing transaction.
func (s *ticketStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *ticketStore) CreateTicketWithWorkflows(ctx context.Context, ticket *domain.Ticket) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		const insertTicket = `
        INSERT INTO tickets (id, template_id, ticket_type, tenant_id, tenant_name, owner_id, owner_name, owner_at, ticket_detail)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at, updated_at`
		err := s.conn(ctx).QueryRow(ctx, insertTicket,
			ticket.ID,
			ticket.TemplateID,
			ticket.TicketType,
			ticket.TenantID,
			ticket.TenantName,
			ticket.OwnerID,
			ticket.OwnerName,
			ticket.OwnerAt,
			ticket.Detail,
		).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return apperrors.NewDuplicate("ticket", map[string]any{"ticket_id": ticket.ID})
			}
			return err
		}
		for i := range ticket.Workflows {
			if err := s.insertWorkflow(ctx, &ticket.Workflows[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ticketStore) insertWorkflow(ctx context.Context, row *domain.Workflow) error {
	detail, err := json.Marshal(row.StatusDetail)
	if err != nil {
		return err
	}
	const insertRow = `
        INSERT INTO workflows (id, ticket_id, status_code, status_detail, status, confirmer_id, confirmer_name, confirmed_at, additional_data)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at, updated_at`
	return s.conn(ctx).QueryRow(ctx, insertRow,
		row.ID,
		row.TicketID,
		row.StatusCode,
		detail,
		int(row.State),
		row.ConfirmerID,
		row.ConfirmerName,
		row.ConfirmedAt,
		row.AdditionalData,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
}

const ticketColumns = `id, template_id, ticket_type, tenant_id, tenant_name, owner_id, owner_name, owner_at, ticket_detail, created_at, updated_at`

func (s *ticketStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	ticket, err := scanTicket(s.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, err
	}
	rows, err := s.listWorkflows(ctx, id)
	if err != nil {
		return nil, err
	}
	ticket.Workflows = rows
	return ticket, nil
}

const workflowColumns = `id, ticket_id, status_code, status_detail, status, confirmer_id, confirmer_name, confirmed_at, additional_data, created_at, updated_at`

func (s *ticketStore) listWorkflows(ctx context.Context, ticketID string) ([]domain.Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflows WHERE ticket_id=$1 ORDER BY created_at, id`, workflowColumns)
	rows, err := s.conn(ctx).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Workflow
	for rows.Next() {
		row, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	return result, rows.Err()
}

func (s *ticketStore) GetActiveWorkflow(ctx context.Context, ticketID string) (*domain.Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflows WHERE ticket_id=$1 AND status=$2`, workflowColumns)
	row, err := scanWorkflow(s.conn(ctx).QueryRow(ctx, query, ticketID, int(domain.RowActive)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

// CloseAndActivate atomically closes the current ACTIVE row and activates the
// target row. The status=ACTIVE condition on the close is the compare-and-swap
// that rejects racing transitions at the database row level.
func (s *ticketStore) CloseAndActivate(ctx context.Context, ticketID, closeRowID, activateRowID string, confirmer domain.Confirmer, confirmedAt time.Time, additionalData map[string]any) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		const closeRow = `
        UPDATE workflows SET status=$1, confirmer_id=$2, confirmer_name=$3, confirmed_at=$4, additional_data=$5, updated_at=NOW()
        WHERE id=$6 AND ticket_id=$7 AND status=$8`
		tag, err := s.conn(ctx).Exec(ctx, closeRow,
			int(domain.RowClosed), confirmer.ID, confirmer.Name, confirmedAt, additionalData,
			closeRowID, ticketID, int(domain.RowActive))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			owned, err := s.rowBelongsToTicket(ctx, closeRowID, ticketID)
			if err != nil {
				return err
			}
			if !owned {
				return apperrors.NewNotFound("workflow", map[string]any{"workflow_id": closeRowID})
			}
			return apperrors.NewInvalidStatus("workflow row is no longer active",
				map[string]any{"workflow_id": closeRowID})
		}

		const activateRow = `
        UPDATE workflows SET status=$1, confirmer_id=$2, confirmer_name=$3, confirmed_at=$4, additional_data=$5, updated_at=NOW()
        WHERE id=$6 AND ticket_id=$7 AND status=$8`
		tag, err = s.conn(ctx).Exec(ctx, activateRow,
			int(domain.RowActive), confirmer.ID, confirmer.Name, confirmedAt, additionalData,
			activateRowID, ticketID, int(domain.RowNonActive))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperrors.NewNotFound("workflow", map[string]any{"workflow_id": activateRowID})
		}
		return nil
	})
}

// AppendErrorRow closes whatever row is ACTIVE and inserts the synthetic
// error row so the stuck ticket stays visible under the single-ACTIVE
// invariant.
func (s *ticketStore) AppendErrorRow(ctx context.Context, ticketID string, confirmer domain.Confirmer, confirmedAt time.Time, message string) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		const closeActive = `UPDATE workflows SET status=$1, updated_at=NOW() WHERE ticket_id=$2 AND status=$3`
		if _, err := s.conn(ctx).Exec(ctx, closeActive, int(domain.RowClosed), ticketID, int(domain.RowActive)); err != nil {
			return err
		}
		detail, err := json.Marshal(domain.Status{
			Code:  domain.StatusError,
			Names: map[string]string{"Default": "Error"},
		})
		if err != nil {
			return err
		}
		const insertError = `
        INSERT INTO workflows (id, ticket_id, status_code, status_detail, status, confirmer_id, confirmer_name, confirmed_at, additional_data)
        VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)`
		_, err = s.conn(ctx).Exec(ctx, insertError,
			ticketID, domain.StatusError, detail, int(domain.RowActive),
			confirmer.ID, confirmer.Name, confirmedAt,
			map[string]any{"error": message})
		if isUniqueViolation(err) {
			// A concurrent writer re-activated a row between the close and
			// the insert.
			return apperrors.NewConflict("ticket already holds an active workflow row",
				map[string]any{"ticket_id": ticketID})
		}
		return err
	})
}

func (s *ticketStore) rowBelongsToTicket(ctx context.Context, rowID, ticketID string) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM workflows WHERE id=$1 AND ticket_id=$2)`,
		rowID, ticketID).Scan(&exists)
	return exists, err
}

func (s *ticketStore) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		clauses = append(clauses, fmt.Sprintf("tenant_id=$%d", len(args)))
	}
	if filter.TicketType != nil {
		args = append(args, *filter.TicketType)
		clauses = append(clauses, fmt.Sprintf("ticket_type=$%d", len(args)))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TemplateID,
		&ticket.TicketType,
		&ticket.TenantID,
		&ticket.TenantName,
		&ticket.OwnerID,
		&ticket.OwnerName,
		&ticket.OwnerAt,
		&ticket.Detail,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var detail []byte
	var state int
	if err := row.Scan(
		&wf.ID,
		&wf.TicketID,
		&wf.StatusCode,
		&detail,
		&state,
		&wf.ConfirmerID,
		&wf.ConfirmerName,
		&wf.ConfirmedAt,
		&wf.AdditionalData,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	); err != nil {
		return nil, err
	}
	wf.State = domain.RowState(state)
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &wf.StatusDetail); err != nil {
			return nil, err
		}
	}
	return &wf, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
