// Package store defines the persistence interface for the ledger engine.
// Implementations include PostgreSQL (source of truth) and in-memory (for
// testing and development).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

var (
	// ErrNotFound is returned when a player does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a player handle is already taken.
	ErrDuplicate = errors.New("store: duplicate")
)

// Store is the persistence interface. Trade records are append-only; the
// only mutable column is a player's cash, and it is only written inside InTx.
type Store interface {
	// CreatePlayer persists a new player. Returns ErrDuplicate if the handle
	// is already registered.
	CreatePlayer(ctx context.Context, p *model.Player) error

	// GetPlayer retrieves a player by handle.
	GetPlayer(ctx context.Context, handle string) (*model.Player, error)

	// ListPlayers returns every player from a single consistent snapshot.
	ListPlayers(ctx context.Context) ([]model.Player, error)

	// PlayerHistory returns a player and all of their trade records in
	// insertion order, read from one snapshot.
	PlayerHistory(ctx context.Context, handle string) (*model.Player, []model.TradeRecord, error)

	// PlayerShares returns a player and their net share count of symbol,
	// read from one snapshot.
	PlayerShares(ctx context.Context, handle, symbol string) (*model.Player, int64, error)

	// InTx runs fn as one atomic unit. If fn returns an error nothing it
	// wrote becomes visible.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside an atomic unit.
type Tx interface {
	// LockPlayer reads a player and holds it against concurrent mutation
	// until the unit ends.
	LockPlayer(ctx context.Context, handle string) (*model.Player, error)

	// HeldShares returns the net share count of symbol for the player.
	HeldShares(ctx context.Context, playerID, symbol string) (int64, error)

	// UpdateCash sets the player's cash balance.
	UpdateCash(ctx context.Context, playerID string, cash decimal.Decimal) error

	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, rec *model.TradeRecord) error
}
