package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// InTx holds the write lock for the whole unit, so transactions are fully
// serialized and readers never observe staged writes.
type MemoryStore struct {
	mu       sync.RWMutex
	players  map[string]*model.Player // handle → player
	byID     map[string]string        // player ID → handle
	trades   []model.TradeRecord
	failNext error // injected commit failure, see FailNextCommit
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players: make(map[string]*model.Player),
		byID:    make(map[string]string),
	}
}

// FailNextCommit makes the next InTx fail with err after fn has run,
// discarding everything fn staged. Used to exercise storage faults.
func (s *MemoryStore) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *MemoryStore) CreatePlayer(_ context.Context, p *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[p.Handle]; exists {
		return fmt.Errorf("player %s: %w", p.Handle, ErrDuplicate)
	}

	// Store a copy to avoid external mutation.
	copy := *p
	s.players[p.Handle] = &copy
	s.byID[p.ID] = p.Handle
	return nil
}

func (s *MemoryStore) GetPlayer(_ context.Context, handle string) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[handle]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", handle, ErrNotFound)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPlayers(_ context.Context) ([]model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]model.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Handle < players[j].Handle })
	return players, nil
}

func (s *MemoryStore) PlayerHistory(_ context.Context, handle string) (*model.Player, []model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[handle]
	if !ok {
		return nil, nil, fmt.Errorf("player %s: %w", handle, ErrNotFound)
	}
	var records []model.TradeRecord
	for _, r := range s.trades {
		if r.PlayerID == p.ID {
			records = append(records, r)
		}
	}
	copy := *p
	return &copy, records, nil
}

func (s *MemoryStore) PlayerShares(_ context.Context, handle, symbol string) (*model.Player, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[handle]
	if !ok {
		return nil, 0, fmt.Errorf("player %s: %w", handle, ErrNotFound)
	}
	copy := *p
	return &copy, s.heldShares(p.ID, symbol), nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, cash: make(map[string]decimal.Decimal)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return fmt.Errorf("commit: %w", err)
	}

	// Commit staged writes.
	for id, cash := range tx.cash {
		s.players[s.byID[id]].Cash = cash
	}
	s.trades = append(s.trades, tx.trades...)
	return nil
}

// heldShares sums committed trades. Callers hold s.mu.
func (s *MemoryStore) heldShares(playerID, symbol string) int64 {
	var held int64
	for _, r := range s.trades {
		if r.PlayerID == playerID && r.Symbol == symbol {
			held += r.Shares
		}
	}
	return held
}

// memTx stages writes until InTx commits. Reads see committed state
// overlaid with the unit's own staged writes.
type memTx struct {
	s      *MemoryStore
	cash   map[string]decimal.Decimal
	trades []model.TradeRecord
}

func (tx *memTx) LockPlayer(_ context.Context, handle string) (*model.Player, error) {
	p, ok := tx.s.players[handle]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", handle, ErrNotFound)
	}
	copy := *p
	if cash, ok := tx.cash[p.ID]; ok {
		copy.Cash = cash
	}
	return &copy, nil
}

func (tx *memTx) HeldShares(_ context.Context, playerID, symbol string) (int64, error) {
	held := tx.s.heldShares(playerID, symbol)
	for _, r := range tx.trades {
		if r.PlayerID == playerID && r.Symbol == symbol {
			held += r.Shares
		}
	}
	return held, nil
}

func (tx *memTx) UpdateCash(_ context.Context, playerID string, cash decimal.Decimal) error {
	if _, ok := tx.s.byID[playerID]; !ok {
		return fmt.Errorf("player id %s: %w", playerID, ErrNotFound)
	}
	tx.cash[playerID] = cash
	return nil
}

func (tx *memTx) InsertTrade(_ context.Context, rec *model.TradeRecord) error {
	if _, ok := tx.s.byID[rec.PlayerID]; !ok {
		return fmt.Errorf("player id %s: %w", rec.PlayerID, ErrNotFound)
	}
	tx.trades = append(tx.trades, *rec)
	return nil
}
