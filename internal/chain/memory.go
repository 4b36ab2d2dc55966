package chain

import (
	"bytes"
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// MemorySource is an in-process Source that applies filters the way the RPC node does.
// It backs offline runs and tests.
type MemorySource struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey][]Account
	err      error
	calls    int
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{accounts: make(map[solana.PublicKey][]Account)}
}

// Put stores an account under program.
func (m *MemorySource) Put(program solana.PublicKey, acc Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[program] = append(m.accounts[program], acc)
}

// FailWith makes every following query return err. A nil err restores normal operation.
func (m *MemorySource) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Calls reports how many queries were served.
func (m *MemorySource) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// ProgramAccounts implements Source.
func (m *MemorySource) ProgramAccounts(ctx context.Context, program solana.PublicKey, filter Filter) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls++
	err := m.err
	stored := m.accounts[program]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(stored))
	for _, acc := range stored {
		if filter.Matches(acc.Data) {
			out = append(out, acc)
		}
	}
	return out, nil
}

// Matches reports whether data satisfies every filter clause.
func (f Filter) Matches(data []byte) bool {
	if f.DataSize > 0 && uint64(len(data)) != f.DataSize {
		return false
	}
	for _, mc := range f.Memcmp {
		end := mc.Offset + uint64(len(mc.Bytes))
		if end > uint64(len(data)) || !bytes.Equal(data[mc.Offset:end], mc.Bytes) {
			return false
		}
	}
	return true
}
