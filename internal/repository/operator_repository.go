package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// OperatorRepository looks up back-office accounts for token issuance.
type OperatorRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
}

type operatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository instantiates repository.
func NewOperatorRepository(pool *pgxpool.Pool) OperatorRepository {
	return &operatorRepository{pool: pool}
}

func (r *operatorRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	const query = `
        SELECT id, name, tenant_id, tenant_name, roles, secret_hash, created_at
        FROM operators WHERE id=$1`
	var op domain.Operator
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&op.ID,
		&op.Name,
		&op.TenantID,
		&op.TenantName,
		&op.Roles,
		&op.SecretHash,
		&op.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &op, nil
}
