package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultURL is the Markit On Demand style quote endpoint.
const DefaultURL = "http://dev.markitondemand.com/MODApis/Api/v2/Quote/json"

// statusSuccess marks a successful quote response.
const statusSuccess = "SUCCESS"

// maxBody caps how much of a response body is read.
const maxBody = 1 << 20

// HTTPSource queries a JSON quote endpoint: GET <base>?symbol=SYM returning
// {"Status":"SUCCESS","LastPrice":123.45} on success, or a body with a
// "Message" describing the failure.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource creates a source for baseURL. A zero timeout leaves the
// caller's context as the only bound.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &HTTPSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

type quoteResponse struct {
	Status    string           `json:"Status"`
	LastPrice *decimal.Decimal `json:"LastPrice"`
	Message   string           `json:"Message"`
}

func (s *HTTPSource) Lookup(ctx context.Context, symbol string) (decimal.Decimal, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return decimal.Zero, sourceFailure(symbol, "invalid quote url", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, sourceFailure(symbol, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return decimal.Zero, sourceFailure(symbol, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return decimal.Zero, sourceFailure(symbol, "read response", err)
	}

	var qr quoteResponse
	decodeErr := json.Unmarshal(body, &qr)

	// A bare 404 usually means a wrong endpoint. Only a decoded reply that
	// names the symbol as missing counts as unknown.
	if resp.StatusCode == http.StatusNotFound && decodeErr == nil && isNoMatch(qr.Message) {
		return decimal.Zero, unknownSymbol(symbol, qr.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, sourceFailure(symbol,
			firstNonEmpty(qr.Message, fmt.Sprintf("unexpected status %d", resp.StatusCode)), nil)
	}
	if decodeErr != nil {
		return decimal.Zero, sourceFailure(symbol, "malformed response", decodeErr)
	}

	if !strings.EqualFold(qr.Status, statusSuccess) {
		if isNoMatch(qr.Message) {
			return decimal.Zero, unknownSymbol(symbol, qr.Message)
		}
		return decimal.Zero, sourceFailure(symbol, firstNonEmpty(qr.Message, "API Error"), nil)
	}
	if qr.LastPrice == nil || !qr.LastPrice.IsPositive() {
		return decimal.Zero, sourceFailure(symbol, "missing or non-positive price", nil)
	}
	return *qr.LastPrice, nil
}

// isNoMatch recognises the source's "No symbol matches found for ..." reply.
func isNoMatch(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "no symbol matches")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
