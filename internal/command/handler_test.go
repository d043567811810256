package command_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ledger-engine/internal/command"
	"github.com/atmx/ledger-engine/internal/ledger"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/quote"
	"github.com/atmx/ledger-engine/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// staticQuotes prices symbols from a fixed table; anything else is unknown.
type staticQuotes map[string]decimal.Decimal

func (q staticQuotes) Lookup(_ context.Context, symbol string) (decimal.Decimal, error) {
	if p, ok := q[symbol]; ok {
		return p, nil
	}
	return decimal.Zero, &quote.LookupError{Symbol: symbol, Kind: quote.ErrUnknownSymbol, Message: "No symbol matches"}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

// newTestEnv creates a handler over an in-memory store and a chi router.
func newTestEnv(t *testing.T, hub *command.WSHub) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	eng := ledger.NewEngine(ms, staticQuotes{
		"AAPL": d("100"),
		"MSFT": d("250.5"),
	}, ledger.Options{TradeFee: d("7")})

	r := chi.NewRouter()
	r.Route("/api/v1", command.NewHandler(eng, hub).Routes)
	return ms, r
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, router http.Handler, handle string) {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/players", command.RegisterRequest{Handle: handle})
	require.Equal(t, http.StatusCreated, w.Code, "register %s: %s", handle, w.Body.String())
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) command.ErrorResponse {
	t.Helper()
	var resp command.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// --- Register ---

func TestRegister(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := do(t, router, "POST", "/api/v1/players", command.RegisterRequest{Handle: "alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p model.Player
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.NotEmpty(t, p.ID)
	assertDecimal(t, "10000", p.Cash)
}

func TestRegister_Duplicate(t *testing.T) {
	_, router := newTestEnv(t, nil)
	register(t, router, "alice")

	w := do(t, router, "POST", "/api/v1/players", command.RegisterRequest{Handle: "alice"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_registered", decodeError(t, w).Kind)
}

func TestRegister_EmptyHandle(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := do(t, router, "POST", "/api/v1/players", command.RegisterRequest{Handle: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Buy / Sell ---

func TestBuyAndSell(t *testing.T) {
	_, router := newTestEnv(t, nil)
	register(t, router, "alice")

	w := do(t, router, "POST", "/api/v1/players/alice/buy", command.BuyRequest{Symbol: "aapl", Quantity: 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var buy command.TradeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buy))
	assert.NotEmpty(t, buy.TradeID)
	assert.Equal(t, "AAPL", buy.Symbol)
	assert.Equal(t, "buy", buy.Side)
	assert.Equal(t, int64(10), buy.Shares)
	assertDecimal(t, "8993", buy.Cash)

	w = do(t, router, "POST", "/api/v1/players/alice/sell", `{"symbol":"AAPL","quantity":"all"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sell command.TradeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sell))
	assert.Equal(t, int64(10), sell.Shares)
	assertDecimal(t, "9986", sell.Cash)
}

func TestTradeErrors(t *testing.T) {
	_, router := newTestEnv(t, nil)
	register(t, router, "alice")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   string
	}{
		{"not registered", "/api/v1/players/ghost/buy", `{"symbol":"AAPL","quantity":1}`, http.StatusNotFound, "not_registered"},
		{"zero quantity", "/api/v1/players/alice/buy", `{"symbol":"AAPL","quantity":0}`, http.StatusBadRequest, "invalid_quantity"},
		{"unknown symbol", "/api/v1/players/alice/buy", `{"symbol":"ZZZZ","quantity":1}`, http.StatusUnprocessableEntity, "unknown_symbol"},
		{"insufficient funds", "/api/v1/players/alice/buy", `{"symbol":"AAPL","quantity":1000}`, http.StatusConflict, "insufficient_funds"},
		{"insufficient shares", "/api/v1/players/alice/sell", `{"symbol":"MSFT","quantity":1}`, http.StatusConflict, "insufficient_shares"},
		{"bad sell quantity", "/api/v1/players/alice/sell", `{"symbol":"MSFT","quantity":"some"}`, http.StatusBadRequest, "invalid_quantity"},
		{"malformed body", "/api/v1/players/alice/buy", `{"symbol":`, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.kind, decodeError(t, w).Kind)
		})
	}
}

// --- Queries ---

func TestHoldings(t *testing.T) {
	_, router := newTestEnv(t, nil)
	register(t, router, "alice")
	do(t, router, "POST", "/api/v1/players/alice/buy", command.BuyRequest{Symbol: "MSFT", Quantity: 2})

	w := do(t, router, "GET", "/api/v1/players/alice/holdings", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Cash      decimal.Decimal  `json:"cash"`
		Positions []model.Position `json:"positions"`
		Report    string           `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, int64(2), resp.Positions[0].Shares)
	// 10000 - 501 - 7
	assertDecimal(t, "9492", resp.Cash)
	assert.Contains(t, resp.Report, "MSFT: 2 shares @ $250.50")
}

func TestHoldings_NotRegistered(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := do(t, router, "GET", "/api/v1/players/ghost/holdings", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTradesAndReconcile(t *testing.T) {
	_, router := newTestEnv(t, nil)
	register(t, router, "alice")
	do(t, router, "POST", "/api/v1/players/alice/buy", command.BuyRequest{Symbol: "AAPL", Quantity: 3})
	do(t, router, "POST", "/api/v1/players/alice/sell", command.SellRequest{Symbol: "AAPL", Quantity: ledger.Exact(1)})

	w := do(t, router, "GET", "/api/v1/players/alice/trades", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []model.TradeRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, int64(-1), records[1].Shares)

	w = do(t, router, "GET", "/api/v1/players/alice/reconcile", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestLeaderboard(t *testing.T) {
	_, router := newTestEnv(t, nil)
	register(t, router, "bob")
	register(t, router, "alice")
	do(t, router, "POST", "/api/v1/players/bob/buy", command.BuyRequest{Symbol: "AAPL", Quantity: 1})

	w := do(t, router, "GET", "/api/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp command.LeaderboardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "alice", resp.Entries[0].Handle)
	assert.True(t, strings.HasPrefix(resp.Report, "Leaderboard:\n\talice: $10000.00 ***SwaggerChampion***\n"), resp.Report)
}

// --- WebSocket ---

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
}

func TestWebSocket_BroadcastsTrades(t *testing.T) {
	hub := command.NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	_, router := newTestEnv(t, hub)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	register(t, router, "alice")
	w := do(t, router, "POST", "/api/v1/players/alice/buy", command.BuyRequest{Symbol: "AAPL", Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg command.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "trade_executed", msg.Type)
	assert.Equal(t, "alice", msg.Handle)
	assert.Equal(t, "AAPL", msg.Symbol)
	assert.Equal(t, int64(2), msg.Shares)
	assert.Equal(t, "buy", msg.Side)
	assert.Equal(t, "100", msg.Price)
}

func TestWebSocket_UpgradeAfterShutdownIsClosed(t *testing.T) {
	hub := command.NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	_, router := newTestEnv(t, hub)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	// The handler must close the connection rather than block on the
	// stopped hub; a read timeout here means it hung.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	var ne net.Error
	assert.False(t, errors.As(err, &ne) && ne.Timeout(), "connection was never closed: %v", err)
	assert.Zero(t, hub.Clients())
}
