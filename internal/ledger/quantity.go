package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// allKeyword is the literal accepted for "sell my whole position".
const allKeyword = "all"

// Quantity is the share count of a sell order: either an exact count or
// the whole current position. The zero value is Exact(0).
type Quantity struct {
	all bool
	n   int64
}

// Exact returns a quantity of exactly n shares.
func Exact(n int64) Quantity { return Quantity{n: n} }

// All returns the whole-position quantity.
func All() Quantity { return Quantity{all: true} }

// IsAll reports whether q means the whole position.
func (q Quantity) IsAll() bool { return q.all }

// Resolve returns the concrete share count given the current holding.
func (q Quantity) Resolve(held int64) int64 {
	if q.all {
		return held
	}
	return q.n
}

func (q Quantity) String() string {
	if q.all {
		return allKeyword
	}
	return strconv.FormatInt(q.n, 10)
}

// ParseQuantity parses a decimal integer or the keyword "all".
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, allKeyword) {
		return All(), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Quantity{}, newError(KindInvalidQuantity, "%q is not a share count", s)
	}
	return Exact(n), nil
}

// MarshalJSON encodes All as "all" and exact counts as numbers.
func (q Quantity) MarshalJSON() ([]byte, error) {
	if q.all {
		return json.Marshal(allKeyword)
	}
	return json.Marshal(q.n)
}

// UnmarshalJSON accepts a JSON integer, or a string holding an integer or
// "all".
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseQuantity(s)
		if err != nil {
			return err
		}
		*q = parsed
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("quantity must be an integer or %q: %w", allKeyword, err)
	}
	*q = Exact(n)
	return nil
}
