package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// ContractRepository persists the peripheral contract records that workflow
// hooks create and check. It satisfies broker.ContractStore.
type ContractRepository interface {
	HasActiveContract(ctx context.Context, tenantID string) (bool, error)
	Create(ctx context.Context, contract *domain.Contract) error
	CancelByTenant(ctx context.Context, tenantID string) error
}

type contractRepository struct {
	pool *pgxpool.Pool
}

// NewContractRepository instantiates repository.
func NewContractRepository(pool *pgxpool.Pool) ContractRepository {
	return &contractRepository{pool: pool}
}

// Hook actions run inside the engine's transaction; writes must join the
// pgx.Tx carried on the context or they would commit independently of it.
func (r *contractRepository) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

func (r *contractRepository) HasActiveContract(ctx context.Context, tenantID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM contracts WHERE tenant_id=$1 AND status=$2)`
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, query, tenantID, domain.ContractActive).Scan(&exists)
	return exists, err
}

func (r *contractRepository) Create(ctx context.Context, contract *domain.Contract) error {
	if contract.ID == "" {
		contract.ID = uuid.NewString()
	}
	if contract.Status == "" {
		contract.Status = domain.ContractActive
	}
	const query = `
        INSERT INTO contracts (id, tenant_id, ticket_id, status)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at`
	return r.conn(ctx).QueryRow(ctx, query,
		contract.ID,
		contract.TenantID,
		contract.TicketID,
		contract.Status,
	).Scan(&contract.CreatedAt)
}

func (r *contractRepository) CancelByTenant(ctx context.Context, tenantID string) error {
	const query = `
        UPDATE contracts SET status=$1, canceled_at=NOW()
        WHERE tenant_id=$2 AND status=$3`
	tag, err := r.conn(ctx).Exec(ctx, query, domain.ContractCanceled, tenantID, domain.ContractActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFound("contract", map[string]any{"tenant_id": tenantID})
	}
	return nil
}
