package orders

import (
	"time"

	"github.com/coachpo/orderlens/internal/accounts"
	"github.com/coachpo/orderlens/internal/numeric"
	"github.com/coachpo/orderlens/internal/tokens"
)

// BuildLimitOrder converts a decoded limit-order account into display units. Buy prices are
// making/taking, sell prices taking/making; a zero denominator yields a zero price.
func BuildLimitOrder(acc accounts.Limit, side Side, reg *tokens.Registry, now time.Time) LimitOrder {
	in := reg.ByKey(acc.InputMint)
	out := reg.ByKey(acc.OutputMint)

	making := numeric.Decimal(acc.MakingAmount, in.Decimals)
	taking := numeric.Decimal(acc.TakingAmount, out.Decimals)

	tracked := in
	price := numeric.Div(taking, making)
	if side == SideBuy {
		tracked = out
		price = numeric.Div(making, taking)
	}

	order := LimitOrder{
		ID:                 acc.Pubkey.String(),
		Maker:              acc.Maker.String(),
		Side:               side,
		Token:              tracked.Symbol,
		InputToken:         refOf(in),
		OutputToken:        refOf(out),
		MakingAmount:       numeric.Float(making),
		TakingAmount:       numeric.Float(taking),
		OriMakingAmount:    numeric.ToDecimal(acc.OriMakingAmount, in.Decimals),
		OriTakingAmount:    numeric.ToDecimal(acc.OriTakingAmount, out.Decimals),
		BorrowMakingAmount: numeric.ToDecimal(acc.BorrowMakingAmount, in.Decimals),
		Price:              numeric.Float(price),
		Status:             limitStatus(acc, now),
		UniqueID:           acc.UniqueID,
		FeeBps:             acc.FeeBps,
		FeeAccount:         acc.FeeAccount.String(),
		CreatedAtMs:        unixMilli(acc.CreatedAt),
		UpdatedAtMs:        unixMilli(acc.UpdatedAt),
	}
	if acc.ExpiredAt != nil {
		ms := unixMilli(*acc.ExpiredAt)
		order.ExpiredAtMs = &ms
	}
	return order
}

func limitStatus(acc accounts.Limit, now time.Time) Status {
	if acc.MakingAmount == 0 {
		return StatusFilled
	}
	if at, ok := acc.ExpiresAt(); ok && !now.Before(at) {
		return StatusExpired
	}
	return StatusOpen
}
