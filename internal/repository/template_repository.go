package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// TemplateRepository loads ticket template reference data. Templates are
// immutable once referenced by tickets; removal is a soft delete, so lookups
// exclude deleted rows.
type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*domain.TicketTemplate, error)
	List(ctx context.Context, limit, offset int) ([]domain.TicketTemplate, error)
}

type templateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository instantiates repository.
func NewTemplateRepository(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepository{pool: pool}
}

func (r *templateRepository) GetByID(ctx context.Context, id string) (*domain.TicketTemplate, error) {
	const query = `
        SELECT id, ticket_type, document, created_at, deleted_at
        FROM ticket_templates WHERE id=$1 AND deleted_at IS NULL`
	var tpl domain.TicketTemplate
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&tpl.ID,
		&tpl.TicketType,
		&tpl.Document,
		&tpl.CreatedAt,
		&tpl.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket template", map[string]any{"template_id": id})
		}
		return nil, err
	}
	return &tpl, nil
}

func (r *templateRepository) List(ctx context.Context, limit, offset int) ([]domain.TicketTemplate, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_type, document, created_at, deleted_at
        FROM ticket_templates WHERE deleted_at IS NULL
        ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketTemplate
	for rows.Next() {
		var tpl domain.TicketTemplate
		if err := rows.Scan(&tpl.ID, &tpl.TicketType, &tpl.Document, &tpl.CreatedAt, &tpl.DeletedAt); err != nil {
			return nil, err
		}
		result = append(result, tpl)
	}
	return result, rows.Err()
}
