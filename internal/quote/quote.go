// Package quote retrieves current prices for symbols from an external source.
//
// Lookups fail in exactly two ways: the source says the symbol does not exist
// (ErrUnknownSymbol), or anything else went wrong (ErrSourceFailure). Callers
// branch with errors.Is; *LookupError carries the source's message.
package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownSymbol is returned when the source explicitly reports that
	// the symbol does not exist.
	ErrUnknownSymbol = errors.New("quote: unknown symbol")

	// ErrSourceFailure covers every other failure: non-success statuses,
	// malformed responses, transport errors and timeouts.
	ErrSourceFailure = errors.New("quote: source failure")
)

// Source returns the current price of a normalized (uppercase) symbol.
type Source interface {
	Lookup(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// LookupError describes a failed lookup. Kind is ErrUnknownSymbol or
// ErrSourceFailure.
type LookupError struct {
	Symbol  string
	Kind    error
	Message string
	Err     error // underlying cause, if any
}

func (e *LookupError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Symbol, msg)
}

// Is reports whether target is the failure kind.
func (e *LookupError) Is(target error) bool { return target == e.Kind }

func (e *LookupError) Unwrap() error { return e.Err }

func unknownSymbol(symbol, message string) error {
	return &LookupError{Symbol: symbol, Kind: ErrUnknownSymbol, Message: message}
}

func sourceFailure(symbol, message string, cause error) error {
	return &LookupError{Symbol: symbol, Kind: ErrSourceFailure, Message: message, Err: cause}
}

// Message returns the source-supplied message of a lookup failure, or the
// error text when err is not a *LookupError.
func Message(err error) string {
	var le *LookupError
	if errors.As(err, &le) && le.Message != "" {
		return le.Message
	}
	return err.Error()
}
