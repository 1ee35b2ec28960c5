package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

func testOperator() *domain.Operator {
	return &domain.Operator{
		ID:         "op-1",
		Name:       "Director User",
		TenantID:   "tnt-1",
		TenantName: "Tenant One",
		Roles:      []string{"director", "__member__"},
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)

	tokenStr, expiresAt, err := tm.GenerateToken(testOperator())
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)
	assert.False(t, expiresAt.IsZero())

	claims, err := tm.ParseToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.SubjectID)
	assert.Equal(t, "tnt-1", claims.TenantID)
	assert.Equal(t, []string{"director", "__member__"}, claims.Roles)

	actor := claims.Actor()
	assert.Equal(t, "op-1", actor.ID)
	assert.Equal(t, "Tenant One", actor.TenantName)
	assert.Equal(t, []string{"director", "__member__"}, actor.Roles)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)
	other := NewTokenManager("other-secret", 60)

	tokenStr, _, err := tm.GenerateToken(testOperator())
	require.NoError(t, err)

	_, err = other.ParseToken(tokenStr)
	require.Error(t, err)
}

func TestNonPositiveTTLFallsBackToDefault(t *testing.T) {
	tm := NewTokenManager("test-secret", -1)

	tokenStr, expiresAt, err := tm.GenerateToken(testOperator())
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	_, err = tm.ParseToken(tokenStr)
	assert.NoError(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)
	_, err := tm.ParseToken("not.a.token")
	require.Error(t, err)
}

func TestHashAndCompareSecret(t *testing.T) {
	hash, err := HashSecret("s3cret-value", 4)
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-value", hash)

	assert.NoError(t, CompareSecret(hash, "s3cret-value"))
	assert.Error(t, CompareSecret(hash, "wrong-value"))
}
