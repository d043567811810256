// Package model defines the core domain types shared across the ledger engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Player is a registered participant. Cash only changes through trades.
type Player struct {
	ID          string          `json:"id" db:"id"`
	Handle      string          `json:"handle" db:"handle"`
	Cash        decimal.Decimal `json:"cash" db:"cash"`
	InitialCash decimal.Decimal `json:"initial_cash" db:"initial_cash"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// TradeRecord is an immutable record of a trade execution.
// Once created, these are never modified or deleted.
type TradeRecord struct {
	ID         string          `json:"id" db:"id"`
	PlayerID   string          `json:"player_id" db:"player_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Shares     int64           `json:"shares" db:"shares"` // signed: +buy, -sell
	Price      decimal.Decimal `json:"price" db:"price"`   // quoted execution price
	Fee        decimal.Decimal `json:"fee" db:"fee"`       // fee charged for this trade
	ExecutedAt time.Time       `json:"executed_at" db:"executed_at"`
}

// CashDelta is the signed change this record applied to the player's cash.
func (r TradeRecord) CashDelta() decimal.Decimal {
	return decimal.NewFromInt(r.Shares).Mul(r.Price).Neg().Sub(r.Fee)
}

// Position is a player's net holding in one symbol, derived from the trade
// records. It is never stored.
type Position struct {
	Symbol      string          `json:"symbol"`
	Shares      int64           `json:"shares"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// Holdings is a player's cash plus every open position, sorted by symbol.
type Holdings struct {
	Handle    string          `json:"handle"`
	Cash      decimal.Decimal `json:"cash"`
	Positions []Position      `json:"positions"`
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank   int             `json:"rank"`
	Handle string          `json:"handle"`
	Cash   decimal.Decimal `json:"cash"`
}
