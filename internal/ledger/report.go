package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

// champion decorates the leader.
const champion = "***SwaggerChampion***"

func money(d decimal.Decimal) string { return "$" + d.StringFixed(2) }

// FormatHoldings renders a holdings report as chat-ready text.
func FormatHoldings(h *model.Holdings) string {
	var b strings.Builder
	b.WriteString("Your holdings:\n")
	fmt.Fprintf(&b, "\t### CASH: %s\n", money(h.Cash))
	for _, p := range h.Positions {
		fmt.Fprintf(&b, "\t%s: %d shares @ %s\n", p.Symbol, p.Shares, money(p.AverageCost))
	}
	return b.String()
}

// FormatLeaderboard renders a leaderboard as chat-ready text.
func FormatLeaderboard(entries []model.LeaderboardEntry) string {
	var b strings.Builder
	b.WriteString("Leaderboard:\n")
	if len(entries) == 0 {
		b.WriteString("\t(no players yet)\n")
		return b.String()
	}
	for i, e := range entries {
		if i == 0 {
			fmt.Fprintf(&b, "\t%s: %s %s\n", e.Handle, money(e.Cash), champion)
			continue
		}
		fmt.Fprintf(&b, "\t%s: %s\n", e.Handle, money(e.Cash))
	}
	return b.String()
}
