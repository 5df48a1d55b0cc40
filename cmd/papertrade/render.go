package main

import (
	"fmt"
	"strings"

	"github.com/papertrade/papertrade/internal/format"
	"github.com/papertrade/papertrade/internal/model"
	"github.com/papertrade/papertrade/internal/portfolio"
)

func portfolioMarkdown(user string, p *model.Portfolio, method portfolio.CostBasis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Portfolio of %s\n\n", user)
	fmt.Fprintf(&b, "Priced at %s, cost basis `%s`.\n\n", p.PricedAt.Format("2006-01-02 15:04:05 MST"), method)

	if len(p.Positions) == 0 {
		b.WriteString("No open positions.\n\n")
	} else {
		b.WriteString("| Symbol | Name | Shares | Avg cost | Price | Value | Return | Return % | Weight |\n")
		b.WriteString("|---|---|--:|--:|--:|--:|--:|--:|--:|\n")
		for _, pos := range p.Positions {
			fmt.Fprintf(&b, "| %s | %s | %d | %s | %s | %s | %s | %s | %s |\n",
				pos.Symbol, escapeCell(pos.Name), pos.Shares,
				format.USD(pos.AvgCost), format.USD(pos.Price), format.USD(pos.Value),
				format.USD(pos.UnrealizedReturn), format.Percent(pos.ReturnPct), format.Percent(pos.Weight))
		}
		b.WriteString("\n")
	}

	b.WriteString("| | Amount | Weight |\n")
	b.WriteString("|---|--:|--:|\n")
	fmt.Fprintf(&b, "| Cash | %s | %s |\n", format.USD(p.Cash), format.Percent(p.CashWeight))
	fmt.Fprintf(&b, "| Total | %s | |\n", format.USD(p.GrandTotal))
	fmt.Fprintf(&b, "| Unrealized return | %s | %s |\n", format.USD(p.TotalReturn), format.Percent(p.TotalReturnPct))
	fmt.Fprintf(&b, "| Realized return | %s | |\n", format.USD(p.RealizedReturn))
	return b.String()
}

func historyMarkdown(txns []model.Transaction) string {
	var b strings.Builder
	b.WriteString("# History\n\n")
	if len(txns) == 0 {
		b.WriteString("No transactions.\n")
		return b.String()
	}
	b.WriteString("| Time | Kind | Symbol | Shares | Price | Total |\n")
	b.WriteString("|---|---|---|--:|--:|--:|\n")
	for _, t := range txns {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s |\n",
			t.Timestamp.Format("2006-01-02 15:04:05"), t.Kind, t.Symbol, t.Shares,
			format.USD(t.Price), format.USD(t.Total().Abs()))
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
