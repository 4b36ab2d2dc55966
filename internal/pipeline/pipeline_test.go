package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderlens/internal/accounts"
	"github.com/coachpo/orderlens/internal/chain"
	"github.com/coachpo/orderlens/internal/orders"
	"github.com/coachpo/orderlens/internal/tokens"
)

var (
	reg       = tokens.MustRegistry()
	chaosMint = solana.MustPublicKeyFromBase58("8SgNwESovnbG1oNEaPVhg6CR9mTMSK7jPvcYRe3wpump")
	logosMint = solana.MustPublicKeyFromBase58("HJUfqXoYjC653f2p33i84zdCC3jc4EuVnbruSe5kpump")
	usdcMint  = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	solMint   = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

type staticPrices struct {
	mu    sync.Mutex
	usd   map[string]float64
	calls [][]string
}

func (s *staticPrices) USDPrices(_ context.Context, mints ...string) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, mints)
	out := make(map[string]float64, len(mints))
	for _, m := range mints {
		out[m] = s.usd[m]
	}
	return out
}

type decodeCounter struct {
	mu     sync.Mutex
	counts map[accounts.Layout]int
}

func (d *decodeCounter) DecodeFailed(_ context.Context, layout accounts.Layout, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.counts == nil {
		d.counts = make(map[accounts.Layout]int)
	}
	d.counts[layout] += n
}

func putRecurring(t *testing.T, src *chain.MemorySource, acc accounts.Recurring) solana.PublicKey {
	t.Helper()
	acc.Pubkey = solana.NewWallet().PublicKey()
	data, err := accounts.EncodeRecurring(acc)
	require.NoError(t, err)
	src.Put(RecurringProgram, chain.Account{Pubkey: acc.Pubkey, Data: data})
	return acc.Pubkey
}

func putLimit(t *testing.T, src *chain.MemorySource, acc accounts.Limit) solana.PublicKey {
	t.Helper()
	acc.Pubkey = solana.NewWallet().PublicKey()
	data, err := accounts.EncodeLimit(acc)
	require.NoError(t, err)
	src.Put(LimitProgram, chain.Account{Pubkey: acc.Pubkey, Data: data})
	return acc.Pubkey
}

func newPipeline(t *testing.T, src chain.Source, prices PriceSource, obs Observer) *Pipeline {
	t.Helper()
	tracked, err := reg.Resolve(tokens.CHAOS, tokens.LOGOS)
	require.NoError(t, err)
	p, err := New(Options{
		Source:   src,
		Prices:   prices,
		Registry: reg,
		Tracked:  tracked,
		Observer: obs,
		Clock:    func() time.Time { return time.Unix(1_700_000_500, 0) },
	})
	require.NoError(t, err)
	return p
}

func TestRunClassifiesAndSummarises(t *testing.T) {
	src := chain.NewMemorySource()
	buyID := putRecurring(t, src, accounts.Recurring{
		InputMint:        usdcMint,
		OutputMint:       chaosMint,
		InDeposited:      100_000_000, // 100 USDC
		InAmountPerCycle: 10_000_000,
		CycleFrequency:   60,
		CreatedAt:        1_700_000_000,
	})
	putRecurring(t, src, accounts.Recurring{
		InputMint:        logosMint,
		OutputMint:       usdcMint,
		InDeposited:      50_000_000,
		InUsed:           10_000_000,
		InAmountPerCycle: 10_000_000,
		CreatedAt:        1_700_000_100,
	})
	crossID := putLimit(t, src, accounts.Limit{
		InputMint:    chaosMint,
		OutputMint:   logosMint,
		MakingAmount: 5_000_000,
		TakingAmount: 10_000_000,
		CreatedAt:    1_700_000_200,
	})
	src.Put(LimitProgram, chain.Account{Pubkey: solana.NewWallet().PublicKey(), Data: make([]byte, 10)})

	prices := &staticPrices{usd: map[string]float64{
		chaosMint.String(): 0.5,
		logosMint.String(): 0.25,
		usdcMint.String():  1,
	}}
	obs := &decodeCounter{}
	p := newPipeline(t, src, prices, obs)

	snap, err := p.Run(context.Background(), 7)
	require.NoError(t, err)
	require.NotEmpty(t, snap.ID)
	require.Equal(t, uint64(7), snap.Seq)
	require.Equal(t, time.Unix(1_700_000_500, 0), snap.UpdatedAt)
	require.Zero(t, snap.DecodeFailures, "size filters keep short buffers out of the queries")
	require.Equal(t, 8, src.Calls())

	require.Len(t, snap.Positions, 2)
	var buy orders.Position
	for _, pos := range snap.Positions {
		if pos.ID == buyID.String() {
			buy = pos
		}
	}
	require.Equal(t, orders.SideBuy, buy.Side)
	require.Equal(t, tokens.CHAOS, buy.Token)
	// USDC per CHAOS = 0.5 / 1.
	require.InDelta(t, 0.5, buy.CurrentPrice, 1e-12)
	require.InDelta(t, 200.0, buy.EstimatedOutput, 1e-9)
	require.InDelta(t, 0.5, buy.MinExecutionPriceUSD, 1e-12)
	require.InDelta(t, 0.5, buy.MaxExecutionPriceUSD, 1e-12)

	require.Len(t, snap.LimitOrders, 2, "a CHAOS to LOGOS order counts once per tracked token")
	for _, lo := range snap.LimitOrders {
		require.Equal(t, crossID.String(), lo.ID)
	}

	chaos := snap.Summaries[tokens.CHAOS]
	require.Equal(t, 1, chaos.Recurring.BuyOrders)
	require.Equal(t, int64(200), chaos.Recurring.BuyVolume)
	require.Equal(t, int64(100), chaos.Recurring.BuyVolumeUSD)
	require.Equal(t, 1, chaos.Limit.SellOrders)
	require.Equal(t, int64(5), chaos.Limit.SellVolume)

	logos := snap.Summaries[tokens.LOGOS]
	require.Equal(t, 1, logos.Recurring.SellOrders)
	require.Equal(t, int64(40), logos.Recurring.SellVolume)
	require.Equal(t, 1, logos.Limit.BuyOrders)
	require.Equal(t, int64(10), logos.Limit.BuyVolume)

	require.Nil(t, snap.History)
	p.Commit(snap)
	require.Len(t, snap.History[tokens.CHAOS], 1)
	require.Equal(t, int64(200), snap.History[tokens.CHAOS][0].BuyVolume)
	require.Empty(t, obs.counts)
}

func TestRunCountsDecodeFailures(t *testing.T) {
	src := chain.NewMemorySource()
	bad, err := accounts.EncodeLimit(accounts.Limit{InputMint: usdcMint, OutputMint: chaosMint, TakingAmount: 1})
	require.NoError(t, err)
	const expiryTagOffset = 8 + 6*32 + 6*8
	bad[expiryTagOffset] = 7
	src.Put(LimitProgram, chain.Account{Pubkey: solana.NewWallet().PublicKey(), Data: bad})
	putLimit(t, src, accounts.Limit{InputMint: usdcMint, OutputMint: chaosMint, MakingAmount: 1, TakingAmount: 2})

	obs := &decodeCounter{}
	p := newPipeline(t, src, &staticPrices{}, obs)
	snap, err := p.Run(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, snap.DecodeFailures)
	require.Len(t, snap.LimitOrders, 1)
	require.Equal(t, 1, obs.counts[accounts.LayoutLimit])
}

func TestRunFailsWhenSourceFails(t *testing.T) {
	src := chain.NewMemorySource()
	src.FailWith(errors.New("rpc unavailable"))
	p := newPipeline(t, src, &staticPrices{}, nil)

	_, err := p.Run(context.Background(), 1)
	require.ErrorContains(t, err, "rpc unavailable")
}

func TestUnknownPricesGiveZeroUSD(t *testing.T) {
	src := chain.NewMemorySource()
	putRecurring(t, src, accounts.Recurring{
		InputMint:        chaosMint,
		OutputMint:       usdcMint,
		InDeposited:      10_000_000,
		InAmountPerCycle: 1_000_000,
	})
	p := newPipeline(t, src, &staticPrices{}, nil)
	snap, err := p.Run(context.Background(), 1)
	require.NoError(t, err)

	chaos := snap.Summaries[tokens.CHAOS]
	require.Equal(t, int64(10), chaos.SellVolume)
	require.Zero(t, chaos.SellVolumeUSD)
	require.Zero(t, chaos.Price)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	_, err = New(Options{Source: chain.NewMemorySource(), Prices: &staticPrices{}, Registry: reg})
	require.ErrorContains(t, err, "tracked")
}

func TestExecutionPricesConvertedThroughCounterToken(t *testing.T) {
	src := chain.NewMemorySource()
	putRecurring(t, src, accounts.Recurring{
		InputMint:        solMint,
		OutputMint:       chaosMint,
		InDeposited:      10_000_000_000, // 10 SOL
		InAmountPerCycle: 1_000_000_000,
		MinOutAmount:     1_000_000_000, // 1000 CHAOS per cycle at least
		CycleFrequency:   3600,
	})
	prices := &staticPrices{usd: map[string]float64{
		chaosMint.String(): 0.5,
		solMint.String():   150,
	}}
	snap, err := newPipeline(t, src, prices, nil).Run(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, snap.Positions, 1)

	pos := snap.Positions[0]
	// 1 SOL / 1000 CHAOS caps the price at 0.001 SOL, i.e. 0.15 USD per CHAOS.
	require.InDelta(t, 0.001, pos.MaxExecutionPrice, 1e-12)
	require.InDelta(t, 0.15, pos.MaxExecutionPriceUSD, 1e-9)
	// No maxOut: the floor is the market price, which converts back to the CHAOS quote.
	require.InDelta(t, 0.5/150, pos.MinExecutionPrice, 1e-12)
	require.InDelta(t, 0.5, pos.MinExecutionPriceUSD, 1e-9)
}

func TestNewRejectsDuplicateTrackedTokens(t *testing.T) {
	chaos, ok := reg.BySymbol(tokens.CHAOS)
	require.True(t, ok)
	_, err := New(Options{
		Source:   chain.NewMemorySource(),
		Prices:   &staticPrices{},
		Registry: reg,
		Tracked:  []tokens.Token{chaos, chaos},
	})
	require.ErrorContains(t, err, "more than once")
}
