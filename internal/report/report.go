// Package report renders a pipeline snapshot as the plain-text analyzer report.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/coachpo/orderlens/internal/numeric"
	"github.com/coachpo/orderlens/internal/orders"
	"github.com/coachpo/orderlens/internal/pipeline"
)

const rule = "----------------------------------------"

// Write renders both the recurring and the limit sections.
func Write(w io.Writer, snap *pipeline.Snapshot, tracked []string, at time.Time) error {
	bw := bufio.NewWriter(w)
	writeRecurring(bw, snap, tracked)
	fmt.Fprintln(bw)
	writeLimit(bw, snap, tracked, at)
	return bw.Flush()
}

// WriteRecurring renders the recurring section only.
func WriteRecurring(w io.Writer, snap *pipeline.Snapshot, tracked []string) error {
	bw := bufio.NewWriter(w)
	writeRecurring(bw, snap, tracked)
	return bw.Flush()
}

// WriteLimit renders the limit-order section only.
func WriteLimit(w io.Writer, snap *pipeline.Snapshot, tracked []string, at time.Time) error {
	bw := bufio.NewWriter(w)
	writeLimit(bw, snap, tracked, at)
	return bw.Flush()
}

// RecurringCounts groups positions the way the report does.
type RecurringCounts struct {
	Total       int
	InstantFill int
	Inactive    int
	Active      int
}

// CountRecurring classifies positions into instant fill, inactive and active.
func CountRecurring(positions []orders.Position) RecurringCounts {
	c := RecurringCounts{Total: len(positions)}
	for _, pos := range positions {
		switch {
		case pos.IsFlashFill:
			c.InstantFill++
		case !pos.IsActive:
			c.Inactive++
		default:
			c.Active++
		}
	}
	return c
}

func trackedSet(tracked []string) map[string]bool {
	set := make(map[string]bool, len(tracked))
	for _, symbol := range tracked {
		set[strings.ToUpper(symbol)] = true
	}
	return set
}

func writeRecurring(w io.Writer, snap *pipeline.Snapshot, tracked []string) {
	set := trackedSet(tracked)
	var positions []orders.Position
	for _, pos := range snap.Positions {
		if set[pos.Token] {
			positions = append(positions, pos)
		}
	}
	counts := CountRecurring(positions)

	fmt.Fprintln(w, "Recurring Orders Analysis")
	fmt.Fprintln(w, "=========================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s positions: %d\n\n", strings.Join(tracked, "/"), counts.Total)

	fmt.Fprintln(w, "Active Orders")
	fmt.Fprintln(w, "=============")
	fmt.Fprintln(w)
	for _, pos := range positions {
		if pos.IsFlashFill || !pos.IsActive {
			continue
		}
		writePosition(w, pos)
	}

	fmt.Fprintln(w, "Summary:")
	fmt.Fprintln(w, "========")
	fmt.Fprintf(w, "Total positions: %d\n", counts.Total)
	fmt.Fprintf(w, "Instant fill orders filtered out: %d\n", counts.InstantFill)
	fmt.Fprintf(w, "Inactive orders filtered out: %d\n", counts.Inactive)
	fmt.Fprintf(w, "Active orders shown: %d\n", counts.Active)
}

func writePosition(w io.Writer, pos orders.Position) {
	in, out := pos.InputToken.Symbol, pos.OutputToken.Symbol
	fmt.Fprintf(w, "Order: %s\n", pos.ID)
	fmt.Fprintf(w, "Type: %s %s\n", pos.Token, sideLabel(pos.Side))
	fmt.Fprintf(w, "Owner: %s\n", pos.Owner)
	fmt.Fprintf(w, "Input Mint: %s (%s)\n", pos.InputToken.Mint, in)
	fmt.Fprintf(w, "Output Mint: %s (%s)\n", pos.OutputToken.Mint, out)
	fmt.Fprintln(w, "\nAmounts:")
	fmt.Fprintf(w, "- Amount per cycle: %s %s\n", amount(pos.AmountPerCycle), in)
	fmt.Fprintf(w, "- Total deposited: %s %s\n", amount(pos.TotalAmount), in)
	fmt.Fprintf(w, "- Amount used: %s %s\n", amount(pos.UsedAmount), in)
	fmt.Fprintf(w, "- Remaining amount: %s %s\n", amount(pos.RemainingAmount), in)
	fmt.Fprintf(w, "- Received: %s %s\n", amount(pos.OutReceived), out)
	fmt.Fprintln(w, "\nCycles:")
	fmt.Fprintf(w, "- Total cycles: %d\n", pos.TotalCycles)
	fmt.Fprintf(w, "- Completed cycles: %d\n", pos.CompletedCycles)
	fmt.Fprintf(w, "- Remaining cycles: %d\n", pos.RemainingCycles)
	fmt.Fprintf(w, "- Cycle frequency: %d seconds (%d days)\n", pos.CycleFrequencySeconds, pos.CycleFrequencySeconds/86400)
	fmt.Fprintf(w, "- Next cycle at: %s\n", timestamp(pos.NextCycleAtMs))
	fmt.Fprintf(w, "- Created at: %s\n", timestamp(pos.CreatedAtMs))
	fmt.Fprintln(w, "\nPrices:")
	fmt.Fprintf(w, "- Execution range: %s - %s %s\n", price(pos.MinExecutionPrice), price(pos.MaxExecutionPrice), pos.PriceToken)
	fmt.Fprintf(w, "- Estimated output: %s\n", amount(pos.EstimatedOutput))
	fmt.Fprintf(w, "\n%s\n\n", rule)
}

type limitGroup struct {
	orders  []orders.LimitOrder
	amount  decimal.Decimal
	totals  map[string]decimal.Decimal
	counter []string
}

// limitLegs returns the tracked amount and the counter value with its symbol.
func limitLegs(order orders.LimitOrder) (float64, float64, string) {
	if order.Side == orders.SideBuy {
		return order.TakingAmount, order.MakingAmount, order.InputToken.Symbol
	}
	return order.MakingAmount, order.TakingAmount, order.OutputToken.Symbol
}

func groupLimits(list []orders.LimitOrder, token string, side orders.Side) limitGroup {
	g := limitGroup{totals: make(map[string]decimal.Decimal)}
	for _, order := range list {
		if order.Token != token || order.Side != side {
			continue
		}
		g.orders = append(g.orders, order)
		tracked, value, counter := limitLegs(order)
		g.amount = g.amount.Add(decimal.NewFromFloat(tracked))
		if _, ok := g.totals[counter]; !ok {
			g.counter = append(g.counter, counter)
		}
		g.totals[counter] = g.totals[counter].Add(decimal.NewFromFloat(value))
	}
	sort.Strings(g.counter)
	sort.SliceStable(g.orders, func(i, j int) bool {
		return g.orders[i].CreatedAtMs > g.orders[j].CreatedAtMs
	})
	return g
}

func writeLimit(w io.Writer, snap *pipeline.Snapshot, tracked []string, at time.Time) {
	fmt.Fprintln(w, "Jupiter Limit Orders Export")
	fmt.Fprintf(w, "Generated at: %s\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "%s\n\n", rule)

	symbols := append([]string(nil), tracked...)
	sort.Strings(symbols)
	for _, token := range symbols {
		token = strings.ToUpper(token)
		fmt.Fprintf(w, "=== %s Orders ===\n\n", token)
		for _, side := range []orders.Side{orders.SideBuy, orders.SideSell} {
			g := groupLimits(snap.LimitOrders, token, side)
			fmt.Fprintf(w, "%s Orders (%d)\n", side, len(g.orders))
			fmt.Fprintln(w, rule)
			fmt.Fprintf(w, "Total %s: %s\n", token, grouped(g.amount, 0))
			for _, counter := range g.counter {
				fmt.Fprintf(w, "Total %s: %s\n", counter, grouped(g.totals[counter], 3))
			}
			fmt.Fprintln(w)
			for i, order := range g.orders {
				writeLimitOrder(w, i+1, token, order)
			}
			fmt.Fprintln(w)
		}
	}
}

func writeLimitOrder(w io.Writer, n int, token string, order orders.LimitOrder) {
	tracked, value, counter := limitLegs(order)
	fmt.Fprintf(w, "%d. Order ID: %s\n", n, order.ID)
	fmt.Fprintf(w, "   Amount: %s %s\n", grouped(decimal.NewFromFloat(tracked), 0), token)
	fmt.Fprintf(w, "   Price: %s %s\n", price(order.Price), counter)
	fmt.Fprintf(w, "   Total: %s %s\n", grouped(decimal.NewFromFloat(value), 3), counter)
	fmt.Fprintf(w, "   Created: %s\n", timestamp(order.CreatedAtMs))
	fmt.Fprintf(w, "   Status: %s\n", strings.ToUpper(string(order.Status)))
	if order.ExpiredAtMs != nil {
		fmt.Fprintf(w, "   Expires: %s\n", timestamp(*order.ExpiredAtMs))
	}
	fmt.Fprintf(w, "   Maker: %s\n\n", order.Maker)
}

func sideLabel(side orders.Side) string {
	if side == orders.SideBuy {
		return "Buy"
	}
	return "Sell"
}

func timestamp(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func amount(f float64) string {
	return grouped(decimal.NewFromFloat(numeric.SafeFloat(f)), 6)
}

func price(f float64) string {
	return numeric.Format(decimal.NewFromFloat(numeric.SafeFloat(f)), 6)
}

// grouped renders d rounded to places with English thousands separators and no trailing
// fractional zeros.
func grouped(d decimal.Decimal, places int32) string {
	rounded := d.Round(places).InexactFloat64()
	return message.NewPrinter(language.English).Sprintf("%v", number.Decimal(rounded, number.MaxFractionDigits(int(places))))
}
