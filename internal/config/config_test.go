package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ticket-workflow", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "migrations", cfg.Postgres.MigrationsDir)
	assert.Equal(t, int64(0), cfg.Quota.ContractLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("POSTGRES_MIGRATIONS_DIR", "db/migrations")
	t.Setenv("QUOTA_CONTRACT_LIMIT", "25")
	t.Setenv("NOTIFY_ROLE_ADDRESSES", "director=directors@example.com, manager=managers@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
	assert.Equal(t, "db/migrations", cfg.Postgres.MigrationsDir)
	assert.Equal(t, int64(25), cfg.Quota.ContractLimit)
	assert.Equal(t, map[string]string{
		"director": "directors@example.com",
		"manager":  "managers@example.com",
	}, cfg.Notification.RoleAddresses)
}

func TestLoadRejectsInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}

func TestParseRoleAddresses(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"single", "director=d@example.com", map[string]string{"director": "d@example.com"}},
		{"skips malformed pairs", "director=d@example.com,broken,=x,manager=", map[string]string{"director": "d@example.com"}},
		{"trims whitespace", " director=d@example.com , manager=m@example.com", map[string]string{
			"director": "d@example.com",
			"manager":  "m@example.com",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRoleAddresses(tt.raw))
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	app := AppConfig{RequestTimeoutSeconds: 15}
	assert.Equal(t, "15s", app.RequestTimeout().String())

	app.RequestTimeoutSeconds = 0
	assert.Zero(t, app.RequestTimeout())
}
