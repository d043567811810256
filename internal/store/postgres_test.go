package store_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/store"
)

// newPostgresStore connects to LEDGER_TEST_DATABASE_URL, or skips.
func newPostgresStore(t *testing.T) *store.PostgresStore {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	st := store.NewPostgresStore(pool)
	require.NoError(t, st.Migrate(ctx))
	// Second run must be a no-op.
	require.NoError(t, st.Migrate(ctx))
	return st
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	st := newPostgresStore(t)
	ctx := context.Background()

	handle := "pg-" + uuid.NewString()
	id := uuid.NewString()
	seedPlayer(t, st, id, handle, 10000)

	err := st.CreatePlayer(ctx, &model.Player{
		ID: uuid.NewString(), Handle: handle,
		Cash: decimal.Zero, InitialCash: decimal.Zero, CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	err = st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.LockPlayer(ctx, handle)
		if err != nil {
			return err
		}
		if err := tx.InsertTrade(ctx, &model.TradeRecord{
			ID: uuid.NewString(), PlayerID: p.ID, Symbol: "AAPL", Shares: 10,
			Price: decimal.RequireFromString("101.25"), Fee: decimal.NewFromInt(7),
			ExecutedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		held, err := tx.HeldShares(ctx, p.ID, "AAPL")
		if err != nil {
			return err
		}
		assert.Equal(t, int64(10), held)
		return tx.UpdateCash(ctx, p.ID, decimal.RequireFromString("8980.50"))
	})
	require.NoError(t, err)

	p, records, err := st.PlayerHistory(ctx, handle)
	require.NoError(t, err)
	assert.True(t, p.Cash.Equal(decimal.RequireFromString("8980.5")), "cash = %s", p.Cash)
	require.Len(t, records, 1)
	assert.True(t, records[0].Price.Equal(decimal.RequireFromString("101.25")))

	p, held, err := st.PlayerShares(ctx, handle, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, int64(10), held)

	_, held, err = st.PlayerShares(ctx, handle, "MSFT")
	require.NoError(t, err)
	assert.Zero(t, held)

	_, _, err = st.PlayerShares(ctx, "pg-missing-"+uuid.NewString(), "AAPL")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresStore_InTxRollsBack(t *testing.T) {
	st := newPostgresStore(t)
	ctx := context.Background()

	handle := "pg-" + uuid.NewString()
	id := uuid.NewString()
	seedPlayer(t, st, id, handle, 500)

	boom := errors.New("boom")
	err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpdateCash(ctx, id, decimal.Zero); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := st.GetPlayer(ctx, handle)
	require.NoError(t, err)
	assert.True(t, p.Cash.Equal(decimal.NewFromInt(500)))

	_, err = st.GetPlayer(ctx, "pg-missing-"+uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
