package ledger

import (
	"errors"
	"fmt"
)

// Kind names an expected failure of a ledger operation.
type Kind int

const (
	// KindInternal marks storage or other unexpected faults. Errors of this
	// kind are never *Error values; KindOf returns it for anything untyped.
	KindInternal Kind = iota
	KindNotRegistered
	KindAlreadyRegistered
	KindInvalidQuantity
	KindInsufficientFunds
	KindInsufficientShares
	KindUnknownSymbol
	KindQuoteSourceError
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindNotRegistered:      "not_registered",
	KindAlreadyRegistered:  "already_registered",
	KindInvalidQuantity:    "invalid_quantity",
	KindInsufficientFunds:  "insufficient_funds",
	KindInsufficientShares: "insufficient_shares",
	KindUnknownSymbol:      "unknown_symbol",
	KindQuoteSourceError:   "quote_source_error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Operations return *Error values carrying the
// detail; each matches the sentinel of its kind.
var (
	ErrNotRegistered      = &Error{Kind: KindNotRegistered}
	ErrAlreadyRegistered  = &Error{Kind: KindAlreadyRegistered}
	ErrInvalidQuantity    = &Error{Kind: KindInvalidQuantity}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientShares = &Error{Kind: KindInsufficientShares}
	ErrUnknownSymbol      = &Error{Kind: KindUnknownSymbol}
	ErrQuoteSource        = &Error{Kind: KindQuoteSourceError}
)

// Error is an expected, typed failure. No state was changed.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "ledger: " + e.Kind.String()
	}
	return "ledger: " + e.Kind.String() + ": " + e.Message
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a ledger failure, or KindInternal if err is
// not a typed failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
