// Package orders derives display positions and limit orders from decoded program accounts.
package orders

import (
	"strings"

	"github.com/coachpo/orderlens/internal/tokens"
)

// Side is the direction of an order relative to its tracked token.
type Side string

const (
	// SideBuy acquires the tracked token.
	SideBuy Side = "BUY"
	// SideSell disposes of the tracked token.
	SideSell Side = "SELL"
)

// ParseSide parses a side case-insensitively.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	default:
		return "", false
	}
}

// Status is the lifecycle state of a limit order.
type Status string

const (
	StatusOpen    Status = "open"
	StatusFilled  Status = "filled"
	StatusExpired Status = "expired"
)

// TokenRef is the registry view of a mint embedded in positions and orders.
type TokenRef struct {
	Symbol   string `json:"symbol"`
	Mint     string `json:"mint"`
	Decimals int    `json:"decimals"`
	Known    bool   `json:"known"`
}

func refOf(tok tokens.Token) TokenRef {
	return TokenRef{Symbol: tok.Symbol, Mint: tok.Mint, Decimals: tok.Decimals, Known: tok.Known()}
}

// Position is a recurring (DCA) order enriched with cycle and price metrics.
type Position struct {
	ID          string   `json:"id"`
	Owner       string   `json:"owner"`
	Side        Side     `json:"side"`
	Token       string   `json:"token"`
	InputToken  TokenRef `json:"inputToken"`
	OutputToken TokenRef `json:"outputToken"`
	// PriceToken labels the price unit as input/output.
	PriceToken string `json:"priceToken"`

	AmountPerCycle  float64 `json:"amountPerCycle"`
	TotalAmount     float64 `json:"totalAmount"`
	UsedAmount      float64 `json:"usedAmount"`
	RemainingAmount float64 `json:"remainingAmount"`
	OutReceived     float64 `json:"outReceived"`

	TotalCycles           uint64 `json:"totalCycles"`
	CompletedCycles       uint64 `json:"completedCycles"`
	RemainingCycles       uint64 `json:"remainingCycles"`
	CycleFrequencySeconds int64  `json:"cycleFrequencySeconds,omitempty"`

	IsActive    bool `json:"isActive"`
	IsFlashFill bool `json:"isFlashFill"`

	// Execution prices are counter-token units per tracked token.
	MinExecutionPrice  float64 `json:"minExecutionPrice"`
	MaxExecutionPrice  float64 `json:"maxExecutionPrice"`
	EstimatedOutput    float64 `json:"estimatedOutput"`
	MinEstimatedOutput float64 `json:"minEstimatedOutput"`
	MaxEstimatedOutput float64 `json:"maxEstimatedOutput"`
	CurrentPrice       float64 `json:"currentPrice"`
	// USD per tracked token; zero when the counter token is unpriced. Set by the pipeline.
	MinExecutionPriceUSD float64 `json:"minExecutionPriceUsd"`
	MaxExecutionPriceUSD float64 `json:"maxExecutionPriceUsd"`

	NextCycleAtMs int64 `json:"nextCycleAtMs,omitempty"`
	CreatedAtMs   int64 `json:"createdAtMs"`
	LastUpdateMs  int64 `json:"lastUpdateMs"`
}

// LimitOrder is a limit-order account in display units.
type LimitOrder struct {
	ID          string   `json:"id"`
	Maker       string   `json:"maker"`
	Side        Side     `json:"side"`
	Token       string   `json:"token"`
	InputToken  TokenRef `json:"inputToken"`
	OutputToken TokenRef `json:"outputToken"`

	MakingAmount       float64 `json:"makingAmount"`
	TakingAmount       float64 `json:"takingAmount"`
	OriMakingAmount    float64 `json:"oriMakingAmount"`
	OriTakingAmount    float64 `json:"oriTakingAmount"`
	BorrowMakingAmount float64 `json:"borrowMakingAmount"`
	Price              float64 `json:"price"`
	Status             Status  `json:"status"`

	UniqueID    uint64 `json:"uniqueId"`
	FeeBps      uint16 `json:"feeBps"`
	FeeAccount  string `json:"feeAccount"`
	CreatedAtMs int64  `json:"createdAtMs"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
	ExpiredAtMs *int64 `json:"expiredAtMs,omitempty"`
}
