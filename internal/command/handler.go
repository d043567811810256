// Package command exposes the ledger engine over HTTP: one chi handler per
// engine operation, plus a WebSocket feed of executed trades.
package command

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/ledger"
	"github.com/atmx/ledger-engine/internal/model"
)

// Handler serves the ledger API.
type Handler struct {
	engine *ledger.Engine
	hub    *WSHub // optional; nil disables trade broadcasts
}

// NewHandler creates a handler over engine.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewHandler(engine *ledger.Engine, hub *WSHub) *Handler {
	return &Handler{engine: engine, hub: hub}
}

// Routes mounts every ledger endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWS)
	}

	r.Post("/players", h.Register)
	r.Post("/players/{handle}/buy", h.Buy)
	r.Post("/players/{handle}/sell", h.Sell)
	r.Get("/players/{handle}/holdings", h.Holdings)
	r.Get("/players/{handle}/trades", h.Trades)
	r.Get("/players/{handle}/reconcile", h.Reconcile)

	r.Get("/leaderboard", h.Leaderboard)
}

// --- Request/Response types ---

// RegisterRequest is the JSON body for POST /players.
type RegisterRequest struct {
	Handle string `json:"handle"`
}

// BuyRequest is the JSON body for POST /players/{handle}/buy.
type BuyRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// SellRequest is the JSON body for POST /players/{handle}/sell. Quantity is
// an integer or "all".
type SellRequest struct {
	Symbol   string          `json:"symbol"`
	Quantity ledger.Quantity `json:"quantity"`
}

// TradeResponse is returned from buy and sell.
type TradeResponse struct {
	TradeID string          `json:"trade_id"`
	Handle  string          `json:"handle"`
	Side    string          `json:"side"`
	Symbol  string          `json:"symbol"`
	Shares  int64           `json:"shares"`
	Price   decimal.Decimal `json:"price"`
	Fee     decimal.Decimal `json:"fee"`
	Cash    decimal.Decimal `json:"cash"`
}

// HoldingsResponse is the holdings snapshot plus its chat rendering.
type HoldingsResponse struct {
	*model.Holdings
	Report string `json:"report"`
}

// LeaderboardResponse is the ranking plus its chat rendering.
type LeaderboardResponse struct {
	Entries []model.LeaderboardEntry `json:"entries"`
	Report  string                   `json:"report"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// --- HTTP Handlers ---

// Register handles POST /api/v1/players
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "invalid_request", http.StatusBadRequest)
		return
	}
	handle := strings.TrimSpace(req.Handle)
	if handle == "" {
		writeError(w, "handle is required", "invalid_request", http.StatusBadRequest)
		return
	}

	player, err := h.engine.Register(r.Context(), handle)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

// Buy handles POST /api/v1/players/{handle}/buy
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "invalid_request", http.StatusBadRequest)
		return
	}

	exec, err := h.engine.Buy(r.Context(), chi.URLParam(r, "handle"), req.Symbol, req.Quantity)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.respondTrade(w, "buy", exec)
}

// Sell handles POST /api/v1/players/{handle}/sell
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// A malformed quantity is a typed failure, not a bad body.
		if ledger.KindOf(err) == ledger.KindInvalidQuantity {
			writeLedgerError(w, err)
			return
		}
		writeError(w, "invalid request body", "invalid_request", http.StatusBadRequest)
		return
	}

	exec, err := h.engine.Sell(r.Context(), chi.URLParam(r, "handle"), req.Symbol, req.Quantity)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.respondTrade(w, "sell", exec)
}

// Holdings handles GET /api/v1/players/{handle}/holdings
func (h *Handler) Holdings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.engine.Holdings(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HoldingsResponse{
		Holdings: holdings,
		Report:   ledger.FormatHoldings(holdings),
	})
}

// Trades handles GET /api/v1/players/{handle}/trades
func (h *Handler) Trades(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.History(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Reconcile handles GET /api/v1/players/{handle}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reconcile(r.Context(), chi.URLParam(r, "handle")); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Leaderboard handles GET /api/v1/leaderboard
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.Leaderboard(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{
		Entries: entries,
		Report:  ledger.FormatLeaderboard(entries),
	})
}

func (h *Handler) respondTrade(w http.ResponseWriter, side string, exec *ledger.Execution) {
	if h.hub != nil {
		h.hub.Broadcast(tradeMessage(side, exec))
	}
	writeJSON(w, http.StatusOK, TradeResponse{
		TradeID: exec.Trade.ID,
		Handle:  exec.Handle,
		Side:    side,
		Symbol:  exec.Symbol,
		Shares:  exec.Shares,
		Price:   exec.Price,
		Fee:     exec.Fee,
		Cash:    exec.Cash,
	})
}

// statusFor maps a failure kind onto an HTTP status.
func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindNotRegistered:
		return http.StatusNotFound
	case ledger.KindAlreadyRegistered, ledger.KindInsufficientFunds, ledger.KindInsufficientShares:
		return http.StatusConflict
	case ledger.KindInvalidQuantity:
		return http.StatusBadRequest
	case ledger.KindUnknownSymbol:
		return http.StatusUnprocessableEntity
	case ledger.KindQuoteSourceError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError writes a typed failure with its kind, or a generic 500
// that does not leak storage details.
func writeLedgerError(w http.ResponseWriter, err error) {
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", ledger.KindInternal.String(), http.StatusInternalServerError)
		return
	}
	writeError(w, lerr.Message, lerr.Kind.String(), statusFor(lerr.Kind))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message, kind string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}
