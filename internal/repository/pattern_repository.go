package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// PatternRepository loads workflow pattern reference data.
type PatternRepository interface {
	GetByID(ctx context.Context, id string) (*domain.WorkflowPattern, error)
	GetByCode(ctx context.Context, code string) (*domain.WorkflowPattern, error)
}

type patternRepository struct {
	pool *pgxpool.Pool
}

// NewPatternRepository instantiates repository.
func NewPatternRepository(pool *pgxpool.Pool) PatternRepository {
	return &patternRepository{pool: pool}
}

func (r *patternRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowPattern, error) {
	const query = `SELECT id, code, contents FROM workflow_patterns WHERE id=$1`
	return r.fetch(ctx, query, id)
}

func (r *patternRepository) GetByCode(ctx context.Context, code string) (*domain.WorkflowPattern, error) {
	const query = `SELECT id, code, contents FROM workflow_patterns WHERE code=$1`
	return r.fetch(ctx, query, code)
}

func (r *patternRepository) fetch(ctx context.Context, query string, arg any) (*domain.WorkflowPattern, error) {
	var (
		id       string
		code     string
		contents []byte
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&id, &code, &contents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("workflow pattern", map[string]any{"pattern": arg})
		}
		return nil, err
	}
	var pattern domain.WorkflowPattern
	if err := json.Unmarshal(contents, &pattern); err != nil {
		return nil, apperrors.NewBrokerError("workflow pattern document is malformed",
			map[string]any{"pattern": code, "cause": err.Error()})
	}
	pattern.ID = id
	pattern.Code = code
	return &pattern, nil
}
