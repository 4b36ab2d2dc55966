// Package aggregate folds positions and limit orders into per-token summaries and a
// bounded chart history.
package aggregate

import (
	"github.com/coachpo/orderlens/internal/numeric"
	"github.com/coachpo/orderlens/internal/orders"
	"github.com/coachpo/orderlens/internal/tokens"
)

// Breakdown holds order counts and volumes for one source of orders. Volumes are whole
// tracked-token units and whole USD, each record rounded before summing.
type Breakdown struct {
	BuyOrders     int   `json:"buyOrders"`
	SellOrders    int   `json:"sellOrders"`
	BuyVolume     int64 `json:"buyVolume"`
	SellVolume    int64 `json:"sellVolume"`
	BuyVolumeUSD  int64 `json:"buyVolumeUsd"`
	SellVolumeUSD int64 `json:"sellVolumeUsd"`
}

func (b *Breakdown) add(side orders.Side, volume, usdPrice float64) {
	rounded := numeric.Round(volume)
	usd := numeric.Round(volume * usdPrice)
	switch side {
	case orders.SideBuy:
		b.BuyOrders++
		b.BuyVolume += rounded
		b.BuyVolumeUSD += usd
	case orders.SideSell:
		b.SellOrders++
		b.SellVolume += rounded
		b.SellVolumeUSD += usd
	}
}

func (b Breakdown) plus(o Breakdown) Breakdown {
	return Breakdown{
		BuyOrders:     b.BuyOrders + o.BuyOrders,
		SellOrders:    b.SellOrders + o.SellOrders,
		BuyVolume:     b.BuyVolume + o.BuyVolume,
		SellVolume:    b.SellVolume + o.SellVolume,
		BuyVolumeUSD:  b.BuyVolumeUSD + o.BuyVolumeUSD,
		SellVolumeUSD: b.SellVolumeUSD + o.SellVolumeUSD,
	}
}

// TokenSummary aggregates every tracked order touching one token.
type TokenSummary struct {
	Symbol string `json:"symbol"`
	Mint   string `json:"mint"`
	// Price is the token's USD price; 0 means unknown.
	Price float64 `json:"price"`
	Breakdown
	Recurring Breakdown `json:"recurring"`
	Limit     Breakdown `json:"limit"`
}

// Summarize builds one summary per tracked token. Records for other tokens, flash-fill
// positions and limit orders that are no longer open are ignored. prices maps mint to USD
// price.
func Summarize(tracked []tokens.Token, positions []orders.Position, limits []orders.LimitOrder, prices map[string]float64) map[string]TokenSummary {
	out := make(map[string]TokenSummary, len(tracked))
	for _, tok := range tracked {
		out[tok.Symbol] = TokenSummary{
			Symbol: tok.Symbol,
			Mint:   tok.Mint,
			Price:  numeric.SafeFloat(prices[tok.Mint]),
		}
	}

	for _, pos := range positions {
		summary, ok := out[pos.Token]
		if !ok || pos.IsFlashFill {
			continue
		}
		summary.Recurring.add(pos.Side, positionVolume(pos), summary.Price)
		out[pos.Token] = summary
	}
	for _, order := range limits {
		summary, ok := out[order.Token]
		if !ok || order.Status != orders.StatusOpen {
			continue
		}
		summary.Limit.add(order.Side, limitVolume(order), summary.Price)
		out[order.Token] = summary
	}

	for symbol, summary := range out {
		summary.Breakdown = summary.Recurring.plus(summary.Limit)
		out[symbol] = summary
	}
	return out
}

// positionVolume is the tracked-token amount still to be bought or sold.
func positionVolume(pos orders.Position) float64 {
	if pos.Side == orders.SideBuy {
		return pos.EstimatedOutput
	}
	return pos.RemainingAmount
}

func limitVolume(order orders.LimitOrder) float64 {
	if order.Side == orders.SideBuy {
		return order.TakingAmount
	}
	return order.MakingAmount
}
