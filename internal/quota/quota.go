// Package quota tracks per-tenant contract counts against a configured
// ceiling. Counters live in Redis so concurrent API instances observe the
// same usage.
package quota

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// Service reserves and releases tenant quota.
type Service struct {
	client *redis.Client
	limit  int64
	logger *zap.Logger
}

// NewService constructs the quota service. limit <= 0 disables enforcement.
func NewService(client *redis.Client, limit int64, logger *zap.Logger) *Service {
	return &Service{client: client, limit: limit, logger: logger}
}

func quotaKey(tenantID string) string {
	return fmt.Sprintf("quota:contracts:%s", tenantID)
}

// Reserve increments the tenant's usage and fails with a quota error when the
// ceiling is exceeded, undoing the increment.
func (s *Service) Reserve(ctx context.Context, tenantID string) error {
	if s.client == nil || s.limit <= 0 {
		return nil
	}
	used, err := s.client.Incr(ctx, quotaKey(tenantID)).Result()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if used > s.limit {
		if err := s.client.Decr(ctx, quotaKey(tenantID)).Err(); err != nil {
			s.logger.Warn("quota rollback failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
		return apperrors.NewQuotaExceeded(tenantID, s.limit)
	}
	return nil
}

// Release decrements the tenant's usage, flooring at zero.
func (s *Service) Release(ctx context.Context, tenantID string) error {
	if s.client == nil || s.limit <= 0 {
		return nil
	}
	used, err := s.client.Decr(ctx, quotaKey(tenantID)).Result()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if used < 0 {
		if err := s.client.Set(ctx, quotaKey(tenantID), 0, 0).Err(); err != nil {
			s.logger.Warn("quota floor reset failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
	return nil
}
