package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRunMigrationsSkipsWithoutPool(t *testing.T) {
	err := RunMigrations(context.Background(), nil, t.TempDir(), zap.NewNop())
	assert.NoError(t, err)
}
