package accounts

import (
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/sourcegraph/conc/iter"
)

// Raw is an undecoded account as returned by the account source.
type Raw struct {
	Pubkey solana.PublicKey
	Data   []byte
}

type decoded[T any] struct {
	value T
	err   *DecodeError
}

// decodeBatch decodes every raw account in parallel, keeping input order. Failed records
// are returned separately and never abort the batch.
func decodeBatch[T any](raws []Raw, decode func(solana.PublicKey, []byte) (T, error)) ([]T, []*DecodeError) {
	results := iter.Map(raws, func(raw *Raw) decoded[T] {
		v, err := decode(raw.Pubkey, raw.Data)
		if err == nil {
			return decoded[T]{value: v}
		}
		var derr *DecodeError
		if !errors.As(err, &derr) {
			derr = newDecodeError(raw.Pubkey, "", "", 0, err)
		}
		return decoded[T]{err: derr}
	})

	values := make([]T, 0, len(results))
	var failures []*DecodeError
	for _, res := range results {
		if res.err != nil {
			failures = append(failures, res.err)
			continue
		}
		values = append(values, res.value)
	}
	return values, failures
}

// DecodeLimitBatch decodes limit-order accounts, skipping malformed ones.
func DecodeLimitBatch(raws []Raw) ([]Limit, []*DecodeError) {
	return decodeBatch(raws, DecodeLimit)
}

// DecodeRecurringBatch decodes DCA accounts, skipping malformed ones.
func DecodeRecurringBatch(raws []Raw) ([]Recurring, []*DecodeError) {
	return decodeBatch(raws, DecodeRecurring)
}
