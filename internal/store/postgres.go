package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store. Call Migrate
// before first use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreatePlayer(ctx context.Context, p *model.Player) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO players (id, handle, cash, initial_cash, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5)`,
		p.ID, p.Handle, p.Cash.String(), p.InitialCash.String(), p.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("player %s: %w", p.Handle, ErrDuplicate)
	}
	return err
}

func (s *PostgresStore) GetPlayer(ctx context.Context, handle string) (*model.Player, error) {
	return getPlayer(ctx, s.pool, handle, "")
}

func (s *PostgresStore) ListPlayers(ctx context.Context) ([]model.Player, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, handle, cash::TEXT, initial_cash::TEXT, created_at
		 FROM players ORDER BY handle`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []model.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

// PlayerHistory reads the player row and the trade log inside one
// REPEATABLE READ transaction so both come from the same snapshot.
func (s *PostgresStore) PlayerHistory(ctx context.Context, handle string) (*model.Player, []model.TradeRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	p, err := getPlayer(ctx, tx, handle, "")
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT id, player_id, symbol, shares, price::TEXT, fee::TEXT, executed_at
		 FROM trades WHERE player_id = $1 ORDER BY seq`, p.ID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	records, err := scanTradeRecords(rows)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return p, records, nil
}

// PlayerShares reads the player row and one symbol's net share count in a
// REPEATABLE READ read-only transaction.
func (s *PostgresStore) PlayerShares(ctx context.Context, handle, symbol string) (*model.Player, int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	p, err := getPlayer(ctx, tx, handle, "")
	if err != nil {
		return nil, 0, err
	}
	held, err := (&pgTx{tx: tx}).HeldShares(ctx, p.ID, symbol)
	if err != nil {
		return nil, 0, fmt.Errorf("held shares %s %s: %w", handle, symbol, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return p, held, nil
}

// InTx runs fn in a READ COMMITTED transaction. Mutations lock the player
// row with FOR UPDATE, which is what serializes concurrent trades.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockPlayer(ctx context.Context, handle string) (*model.Player, error) {
	return getPlayer(ctx, t.tx, handle, " FOR UPDATE")
}

func (t *pgTx) HeldShares(ctx context.Context, playerID, symbol string) (int64, error) {
	var held int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(shares), 0) FROM trades
		 WHERE player_id = $1 AND symbol = $2`, playerID, symbol).Scan(&held)
	return held, err
}

func (t *pgTx) UpdateCash(ctx context.Context, playerID string, cash decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE players SET cash = $2::NUMERIC WHERE id = $1`, playerID, cash.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("player id %s: %w", playerID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) InsertTrade(ctx context.Context, r *model.TradeRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO trades (id, player_id, symbol, shares, price, fee, executed_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
		r.ID, r.PlayerID, r.Symbol, r.Shares, r.Price.String(), r.Fee.String(), r.ExecutedAt,
	)
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPlayer(ctx context.Context, q querier, handle, suffix string) (*model.Player, error) {
	row := q.QueryRow(ctx,
		`SELECT id, handle, cash::TEXT, initial_cash::TEXT, created_at
		 FROM players WHERE handle = $1`+suffix, handle)
	p, err := scanPlayer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", handle, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get player %s: %w", handle, err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row scanner) (*model.Player, error) {
	var p model.Player
	var cashS, initialS string
	if err := row.Scan(&p.ID, &p.Handle, &cashS, &initialS, &p.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Cash, err = decimal.NewFromString(cashS); err != nil {
		return nil, fmt.Errorf("player %s cash: %w", p.Handle, err)
	}
	if p.InitialCash, err = decimal.NewFromString(initialS); err != nil {
		return nil, fmt.Errorf("player %s initial cash: %w", p.Handle, err)
	}
	return &p, nil
}

// scanTradeRecords reads pgx rows into TradeRecord slices.
func scanTradeRecords(rows pgx.Rows) ([]model.TradeRecord, error) {
	var records []model.TradeRecord
	for rows.Next() {
		var r model.TradeRecord
		var priceS, feeS string

		if err := rows.Scan(&r.ID, &r.PlayerID, &r.Symbol, &r.Shares,
			&priceS, &feeS, &r.ExecutedAt); err != nil {
			return nil, err
		}

		var err error
		if r.Price, err = decimal.NewFromString(priceS); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", r.ID, err)
		}
		if r.Fee, err = decimal.NewFromString(feeS); err != nil {
			return nil, fmt.Errorf("trade %s fee: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
