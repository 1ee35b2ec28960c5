package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

// stubTx satisfies pgx.Tx through the embedded interface; only its identity
// matters here.
type stubTx struct{ pgx.Tx }

func TestConnJoinsContextTransaction(t *testing.T) {
	tx := stubTx{}
	ctx := context.WithValue(context.Background(), txKey{}, pgx.Tx(tx))

	store := &ticketStore{}
	assert.Equal(t, tx, store.conn(ctx))

	contracts := &contractRepository{}
	assert.Equal(t, tx, contracts.conn(ctx))
}

func TestConnFallsBackToPoolWithoutTransaction(t *testing.T) {
	ctx := context.Background()

	store := &ticketStore{}
	_, isTx := store.conn(ctx).(pgx.Tx)
	assert.False(t, isTx)

	contracts := &contractRepository{}
	_, isTx = contracts.conn(ctx).(pgx.Tx)
	assert.False(t, isTx)
}
