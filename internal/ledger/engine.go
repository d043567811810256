// Package ledger is the accounting engine of the trading game: it registers
// players, executes buys and sells against quoted prices, and derives
// positions and leaderboards from the append-only trade log.
//
// All monetary values use shopspring/decimal, never float64.
//
// Every mutation reads the player's balance and shares, validates, and
// writes the new state as one store transaction, while holding the player's
// entry in a lock table. The quote lookup happens before that, bounded by
// Options.QuoteTimeout, so a slow quote source never holds a lock.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/metrics"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/quote"
	"github.com/atmx/ledger-engine/internal/store"
)

// Defaults applied by NewEngine for zero Options fields.
var (
	DefaultInitialCash  = decimal.NewFromInt(10000)
	DefaultQuoteTimeout = 5 * time.Second
)

const (
	sideBuy  = "buy"
	sideSell = "sell"
)

// Options configures an Engine.
type Options struct {
	// InitialCash is the balance of a newly registered player.
	InitialCash decimal.Decimal
	// TradeFee is charged on every buy and every sell. Zero means free
	// trading; negative values are treated as zero.
	TradeFee decimal.Decimal
	// QuoteTimeout bounds each price lookup. Negative disables the bound.
	QuoteTimeout time.Duration
	Logger       *slog.Logger
	// Now is the clock used for timestamps; defaults to time.Now.
	Now func() time.Time
}

// Engine executes ledger operations. It is safe for concurrent use.
type Engine struct {
	store        store.Store
	quotes       quote.Source
	initialCash  decimal.Decimal
	fee          decimal.Decimal
	quoteTimeout time.Duration
	log          *slog.Logger
	now          func() time.Time
	locks        lockTable
}

// Execution describes a completed trade.
type Execution struct {
	Trade  model.TradeRecord `json:"trade"`
	Handle string            `json:"handle"`
	Symbol string            `json:"symbol"`
	Shares int64             `json:"shares"` // always positive
	Price  decimal.Decimal   `json:"price"`
	Fee    decimal.Decimal   `json:"fee"`
	Cash   decimal.Decimal   `json:"cash"` // balance after the trade
}

// NewEngine creates an engine over st, pricing trades with quotes.
func NewEngine(st store.Store, quotes quote.Source, opts Options) *Engine {
	e := &Engine{
		store:        st,
		quotes:       quotes,
		initialCash:  opts.InitialCash,
		fee:          opts.TradeFee,
		quoteTimeout: opts.QuoteTimeout,
		log:          opts.Logger,
		now:          opts.Now,
	}
	if e.initialCash.IsZero() {
		e.initialCash = DefaultInitialCash
	}
	if e.fee.IsNegative() {
		e.fee = decimal.Zero
	}
	if e.quoteTimeout == 0 {
		e.quoteTimeout = DefaultQuoteTimeout
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// TradeFee returns the fee charged per trade.
func (e *Engine) TradeFee() decimal.Decimal { return e.fee }

// Register creates a player with the initial cash balance. A handle that is
// already registered fails with ErrAlreadyRegistered and is left untouched.
func (e *Engine) Register(ctx context.Context, handle string) (*model.Player, error) {
	p := &model.Player{
		ID:          uuid.New().String(),
		Handle:      handle,
		Cash:        e.initialCash,
		InitialCash: e.initialCash,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.CreatePlayer(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, newError(KindAlreadyRegistered, "%s is already registered", handle)
		}
		e.log.Error("register failed", "player", handle, "err", err)
		return nil, fmt.Errorf("register %s: %w", handle, err)
	}

	metrics.Registrations.Inc()
	e.log.Info("player registered", "player", handle, "cash", p.Cash.String())
	return p, nil
}

// Buy purchases shares of symbol at the quoted price plus the trade fee.
func (e *Engine) Buy(ctx context.Context, handle, symbol string, shares int64) (*Execution, error) {
	start := time.Now()
	symbol = NormalizeSymbol(symbol)

	if _, err := e.getPlayer(ctx, handle); err != nil {
		return nil, e.reject(sideBuy, handle, symbol, err)
	}
	if shares < 1 {
		return nil, e.reject(sideBuy, handle, symbol,
			newError(KindInvalidQuantity, "cannot buy %d shares", shares))
	}

	price, err := e.price(ctx, symbol)
	if err != nil {
		return nil, e.reject(sideBuy, handle, symbol, err)
	}
	cost := e.fee.Add(decimal.NewFromInt(shares).Mul(price))

	unlock := e.locks.lock(handle)
	defer unlock()

	var exec *Execution
	err = e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := e.lockPlayer(ctx, tx, handle)
		if err != nil {
			return err
		}
		if p.Cash.LessThan(cost) {
			return newError(KindInsufficientFunds, "need %s, only sitting on %s", money(cost), money(p.Cash))
		}

		rec := e.newRecord(p.ID, symbol, shares, price)
		cash := p.Cash.Sub(cost)
		if err := tx.UpdateCash(ctx, p.ID, cash); err != nil {
			return fmt.Errorf("debit cash: %w", err)
		}
		if err := tx.InsertTrade(ctx, rec); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		exec = e.execution(handle, rec, cash)
		return nil
	})
	if err != nil {
		return nil, e.reject(sideBuy, handle, symbol, err)
	}

	e.executed(sideBuy, exec, start)
	return exec, nil
}

// Sell disposes of shares of symbol at the quoted price less the trade fee.
// All() sells the entire current position. Proceeds may be negative when the
// fee exceeds the sale value.
func (e *Engine) Sell(ctx context.Context, handle, symbol string, qty Quantity) (*Execution, error) {
	start := time.Now()
	symbol = NormalizeSymbol(symbol)

	// Checked before the quote so an unheld symbol costs no lookup.
	held, err := e.heldShares(ctx, handle, symbol)
	if err != nil {
		return nil, e.reject(sideSell, handle, symbol, err)
	}
	if err := checkSell(qty, held, symbol); err != nil {
		return nil, e.reject(sideSell, handle, symbol, err)
	}

	price, err := e.price(ctx, symbol)
	if err != nil {
		return nil, e.reject(sideSell, handle, symbol, err)
	}

	unlock := e.locks.lock(handle)
	defer unlock()

	var exec *Execution
	err = e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := e.lockPlayer(ctx, tx, handle)
		if err != nil {
			return err
		}
		held, err := tx.HeldShares(ctx, p.ID, symbol)
		if err != nil {
			return fmt.Errorf("held shares: %w", err)
		}
		// Re-validate under the lock; the position may have moved since the
		// pre-check.
		if err := checkSell(qty, held, symbol); err != nil {
			return err
		}
		shares := qty.Resolve(held)

		rec := e.newRecord(p.ID, symbol, -shares, price)
		cash := p.Cash.Add(decimal.NewFromInt(shares).Mul(price)).Sub(e.fee)
		if err := tx.InsertTrade(ctx, rec); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		if err := tx.UpdateCash(ctx, p.ID, cash); err != nil {
			return fmt.Errorf("credit cash: %w", err)
		}
		exec = e.execution(handle, rec, cash)
		return nil
	})
	if err != nil {
		return nil, e.reject(sideSell, handle, symbol, err)
	}

	e.executed(sideSell, exec, start)
	return exec, nil
}

// Holdings returns the player's cash and every open position with its
// average cost basis.
func (e *Engine) Holdings(ctx context.Context, handle string) (*model.Holdings, error) {
	p, records, err := e.history(ctx, handle)
	if err != nil {
		return nil, err
	}
	return &model.Holdings{
		Handle:    p.Handle,
		Cash:      p.Cash,
		Positions: DerivePositions(records),
	}, nil
}

// Leaderboard ranks every player by cash, richest first. Equal balances are
// ordered by handle.
func (e *Engine) Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	players, err := e.store.ListPlayers(ctx)
	if err != nil {
		e.log.Error("list players failed", "err", err)
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	sort.SliceStable(players, func(i, j int) bool {
		if c := players[i].Cash.Cmp(players[j].Cash); c != 0 {
			return c > 0
		}
		return players[i].Handle < players[j].Handle
	})

	entries := make([]model.LeaderboardEntry, len(players))
	for i, p := range players {
		entries[i] = model.LeaderboardEntry{Rank: i + 1, Handle: p.Handle, Cash: p.Cash}
	}
	return entries, nil
}

// History returns the player's trade records, oldest first.
func (e *Engine) History(ctx context.Context, handle string) ([]model.TradeRecord, error) {
	_, records, err := e.history(ctx, handle)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.TradeRecord{}
	}
	return records, nil
}

// Reconcile replays the player's trade log and checks it against the stored
// balance: cash must equal the initial cash plus every trade's cash delta,
// and no symbol's running share count may go negative. A mismatch is an
// integrity fault, not a typed failure.
func (e *Engine) Reconcile(ctx context.Context, handle string) error {
	p, records, err := e.history(ctx, handle)
	if err != nil {
		return err
	}

	expected := p.InitialCash
	running := make(map[string]int64)
	for _, r := range records {
		expected = expected.Add(r.CashDelta())
		running[r.Symbol] += r.Shares
		if running[r.Symbol] < 0 {
			err := fmt.Errorf("reconcile %s: %s position negative after trade %s", handle, r.Symbol, r.ID)
			e.log.Error("reconcile failed", "player", handle, "err", err)
			return err
		}
	}
	if !expected.Equal(p.Cash) {
		err := fmt.Errorf("reconcile %s: stored cash %s, replayed %s", handle, p.Cash, expected)
		e.log.Error("reconcile failed", "player", handle, "err", err)
		return err
	}
	return nil
}

// NormalizeSymbol uppercases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// --- helpers ---

func (e *Engine) getPlayer(ctx context.Context, handle string) (*model.Player, error) {
	p, err := e.store.GetPlayer(ctx, handle)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotRegistered, "%s is not registered", handle)
	}
	if err != nil {
		e.log.Error("get player failed", "player", handle, "err", err)
		return nil, fmt.Errorf("get player %s: %w", handle, err)
	}
	return p, nil
}

func (e *Engine) history(ctx context.Context, handle string) (*model.Player, []model.TradeRecord, error) {
	p, records, err := e.store.PlayerHistory(ctx, handle)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, newError(KindNotRegistered, "%s is not registered", handle)
	}
	if err != nil {
		e.log.Error("player history failed", "player", handle, "err", err)
		return nil, nil, fmt.Errorf("history %s: %w", handle, err)
	}
	return p, records, nil
}

func (e *Engine) heldShares(ctx context.Context, handle, symbol string) (int64, error) {
	_, held, err := e.store.PlayerShares(ctx, handle, symbol)
	if errors.Is(err, store.ErrNotFound) {
		return 0, newError(KindNotRegistered, "%s is not registered", handle)
	}
	if err != nil {
		return 0, fmt.Errorf("held shares: %w", err)
	}
	return held, nil
}

func (e *Engine) lockPlayer(ctx context.Context, tx store.Tx, handle string) (*model.Player, error) {
	p, err := tx.LockPlayer(ctx, handle)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotRegistered, "%s is not registered", handle)
	}
	if err != nil {
		return nil, fmt.Errorf("lock player: %w", err)
	}
	return p, nil
}

// price looks up symbol, mapping every failure onto the two quote kinds.
func (e *Engine) price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol == "" {
		return decimal.Zero, newError(KindUnknownSymbol, "empty symbol")
	}
	if e.quoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.quoteTimeout)
		defer cancel()
	}

	start := time.Now()
	price, err := e.quotes.Lookup(ctx, symbol)
	metrics.QuoteLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil && price.IsPositive():
		metrics.QuoteLookups.WithLabelValues("ok").Inc()
		return price, nil
	case err == nil:
		metrics.QuoteLookups.WithLabelValues("error").Inc()
		return decimal.Zero, newError(KindQuoteSourceError, "non-positive price %s for %s", price, symbol)
	case errors.Is(err, quote.ErrUnknownSymbol):
		metrics.QuoteLookups.WithLabelValues("unknown").Inc()
		return decimal.Zero, newError(KindUnknownSymbol, "%s: %s", symbol, quote.Message(err))
	default:
		metrics.QuoteLookups.WithLabelValues("error").Inc()
		e.log.Warn("quote lookup failed", "symbol", symbol, "err", err)
		return decimal.Zero, newError(KindQuoteSourceError, "%s: %s", symbol, quote.Message(err))
	}
}

func (e *Engine) newRecord(playerID, symbol string, shares int64, price decimal.Decimal) *model.TradeRecord {
	return &model.TradeRecord{
		ID:         uuid.New().String(),
		PlayerID:   playerID,
		Symbol:     symbol,
		Shares:     shares,
		Price:      price,
		Fee:        e.fee,
		ExecutedAt: e.now().UTC(),
	}
}

func (e *Engine) execution(handle string, rec *model.TradeRecord, cash decimal.Decimal) *Execution {
	shares := rec.Shares
	if shares < 0 {
		shares = -shares
	}
	return &Execution{
		Trade:  *rec,
		Handle: handle,
		Symbol: rec.Symbol,
		Shares: shares,
		Price:  rec.Price,
		Fee:    rec.Fee,
		Cash:   cash,
	}
}

func (e *Engine) executed(side string, exec *Execution, start time.Time) {
	metrics.TradesTotal.WithLabelValues(side).Inc()
	metrics.TradeLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())
	e.log.Info("trade executed",
		"trade_id", exec.Trade.ID,
		"side", side,
		"player", exec.Handle,
		"symbol", exec.Symbol,
		"shares", exec.Shares,
		"price", exec.Price.String(),
		"cash", exec.Cash.String(),
	)
}

// reject records a failed trade. Typed failures are expected and logged at
// debug; anything else is a fault.
func (e *Engine) reject(side, handle, symbol string, err error) error {
	kind := KindOf(err)
	metrics.TradeRejections.WithLabelValues(side, kind.String()).Inc()
	if kind == KindInternal {
		e.log.Error("trade failed", "side", side, "player", handle, "symbol", symbol, "err", err)
		return fmt.Errorf("%s %s %s: %w", side, handle, symbol, err)
	}
	e.log.Debug("trade rejected", "side", side, "player", handle, "symbol", symbol, "kind", kind.String(), "err", err)
	return err
}

// checkSell validates a sell of qty against the held share count.
func checkSell(qty Quantity, held int64, symbol string) error {
	shares := qty.Resolve(held)
	if shares < 1 {
		if qty.IsAll() {
			return newError(KindInvalidQuantity, "no %s shares to sell", symbol)
		}
		return newError(KindInvalidQuantity, "cannot sell %d shares", shares)
	}
	if held < shares {
		return newError(KindInsufficientShares, "only holding %d shares of %s", held, symbol)
	}
	return nil
}
