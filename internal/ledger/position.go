package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

// DerivePositions replays trade records in order and returns every symbol
// with a positive net share count, sorted by symbol.
//
// A buy of q at p adds q*p to the symbol's total cost. A sell of q shrinks
// the total cost to (shares-q)/shares of itself, so selling never moves the
// average cost of what remains.
func DerivePositions(records []model.TradeRecord) []model.Position {
	type agg struct {
		shares int64
		cost   decimal.Decimal
	}
	bySymbol := make(map[string]*agg)

	for _, r := range records {
		a, ok := bySymbol[r.Symbol]
		if !ok {
			a = &agg{}
			bySymbol[r.Symbol] = a
		}
		switch {
		case r.Shares > 0:
			a.cost = a.cost.Add(decimal.NewFromInt(r.Shares).Mul(r.Price))
			a.shares += r.Shares
		case r.Shares < 0:
			sold := -r.Shares
			if a.shares > 0 {
				remaining := a.shares - sold
				a.cost = a.cost.Mul(decimal.NewFromInt(remaining)).Div(decimal.NewFromInt(a.shares))
			}
			a.shares -= sold
			if a.shares <= 0 {
				a.cost = decimal.Zero
			}
		}
	}

	positions := make([]model.Position, 0, len(bySymbol))
	for symbol, a := range bySymbol {
		if a.shares <= 0 {
			continue
		}
		positions = append(positions, model.Position{
			Symbol:      symbol,
			Shares:      a.shares,
			TotalCost:   a.cost,
			AverageCost: a.cost.Div(decimal.NewFromInt(a.shares)),
		})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions
}
