// Package chain queries Solana program accounts for the order programs.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/coachpo/orderlens/errs"
	"github.com/coachpo/orderlens/internal/accounts"
	"github.com/coachpo/orderlens/lib/retry"
)

const component = "chain"

// Account is an undecoded program account.
type Account = accounts.Raw

// Memcmp matches Bytes at Offset inside the account data.
type Memcmp struct {
	Offset uint64
	Bytes  []byte
}

// Filter narrows a program account query. A zero DataSize matches any size.
type Filter struct {
	DataSize uint64
	Memcmp   []Memcmp
}

// MintFilter selects accounts of size whose mint at offset equals mint.
func MintFilter(size, offset uint64, mint solana.PublicKey) Filter {
	return Filter{
		DataSize: size,
		Memcmp:   []Memcmp{{Offset: offset, Bytes: mint.Bytes()}},
	}
}

func (f Filter) String() string {
	out := fmt.Sprintf("size=%d", f.DataSize)
	for _, m := range f.Memcmp {
		out += fmt.Sprintf(" memcmp@%d=%s", m.Offset, base58.Encode(m.Bytes))
	}
	return out
}

// Source lists program accounts matching a filter.
type Source interface {
	ProgramAccounts(ctx context.Context, program solana.PublicKey, filter Filter) ([]Account, error)
}

// RPCConfig configures the JSON-RPC account source.
type RPCConfig struct {
	Endpoint   string
	Commitment rpc.CommitmentType
	Attempts   int
	RetryStep  time.Duration
}

// RPCSource implements Source over Solana JSON-RPC getProgramAccounts.
type RPCSource struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
	policy     retry.Policy
	logger     *zap.Logger
}

// NewRPCSource creates an RPC-backed source.
func NewRPCSource(cfg RPCConfig, logger *zap.Logger) *RPCSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryStep <= 0 {
		cfg.RetryStep = time.Second
	}
	logger = logger.Named(component)
	return &RPCSource{
		client:     rpc.New(cfg.Endpoint),
		commitment: cfg.Commitment,
		policy: retry.Policy{
			Attempts: cfg.Attempts,
			Step:     cfg.RetryStep,
			Notify: func(err error, wait time.Duration) {
				logger.Debug("program account query failed; retrying", zap.Duration("wait", wait), zap.Error(err))
			},
		},
		logger: logger,
	}
}

// ProgramAccounts runs getProgramAccounts with base64 encoding and the given filters.
func (s *RPCSource) ProgramAccounts(ctx context.Context, program solana.PublicKey, filter Filter) ([]Account, error) {
	opts := &rpc.GetProgramAccountsOpts{
		Commitment: s.commitment,
		Encoding:   solana.EncodingBase64,
		Filters:    rpcFilters(filter),
	}
	result, err := retry.Do(ctx, s.policy, func(ctx context.Context) (rpc.GetProgramAccountsResult, error) {
		return s.client.GetProgramAccountsWithOpts(ctx, program, opts)
	})
	if err != nil {
		return nil, errs.New(component, errs.CodeNetwork,
			errs.WithMessage("getProgramAccounts"),
			errs.WithField("program", program.String()),
			errs.WithField("filter", filter.String()),
			errs.WithCause(err))
	}

	out := make([]Account, 0, len(result))
	for _, item := range result {
		if item == nil || item.Account == nil || item.Account.Data == nil {
			continue
		}
		out = append(out, Account{Pubkey: item.Pubkey, Data: item.Account.Data.GetBinary()})
	}
	s.logger.Debug("program accounts fetched",
		zap.Stringer("program", program),
		zap.Stringer("filter", filter),
		zap.Int("accounts", len(out)))
	return out, nil
}

func rpcFilters(filter Filter) []rpc.RPCFilter {
	filters := make([]rpc.RPCFilter, 0, len(filter.Memcmp)+1)
	if filter.DataSize > 0 {
		filters = append(filters, rpc.RPCFilter{DataSize: filter.DataSize})
	}
	for _, m := range filter.Memcmp {
		filters = append(filters, rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{Offset: m.Offset, Bytes: solana.Base58(m.Bytes)},
		})
	}
	return filters
}
