// Package accounts decodes Jupiter recurring (DCA) and limit-order program accounts.
package accounts

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/coachpo/orderlens/errs"
)

// Layout names an on-chain account layout.
type Layout string

const (
	// LayoutRecurring is the Jupiter DCA account layout.
	LayoutRecurring Layout = "recurring"
	// LayoutLimit is the Jupiter limit-order account layout.
	LayoutLimit Layout = "limit"
)

const (
	discriminatorSize = 8
	pubkeySize        = 32

	// InputMintOffset is where both layouts store the input mint.
	InputMintOffset = discriminatorSize + pubkeySize
	// OutputMintOffset is where both layouts store the output mint.
	OutputMintOffset = InputMintOffset + pubkeySize
)

// DecodeError reports a record that could not be decoded.
type DecodeError struct {
	Account string
	Layout  Layout
	Field   string
	Offset  int
	Err     error
}

func (e *DecodeError) Error() string {
	account := e.Account
	if account == "" {
		account = "<unknown>"
	}
	if e.Field == "" {
		return fmt.Sprintf("decode %s account %s: %v", e.Layout, account, e.Err)
	}
	return fmt.Sprintf("decode %s account %s: field %s at offset %d: %v", e.Layout, account, e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func newDecodeError(account solana.PublicKey, layout Layout, field string, offset int, cause error) *DecodeError {
	return &DecodeError{
		Account: keyString(account),
		Layout:  layout,
		Field:   field,
		Offset:  offset,
		Err: errs.New("accounts", errs.CodeDecode,
			errs.WithField("layout", string(layout)),
			errs.WithField("field", field),
			errs.WithCause(cause),
		),
	}
}

func keyString(key solana.PublicKey) string {
	if key.IsZero() {
		return ""
	}
	return key.String()
}

// reader walks a buffer field by field. The first failure sticks and later reads are no-ops,
// so decoders can read a whole layout and check err once.
type reader struct {
	dec     *bin.Decoder
	account solana.PublicKey
	layout  Layout
	err     *DecodeError
}

func newReader(account solana.PublicKey, layout Layout, data []byte) *reader {
	return &reader{dec: bin.NewBorshDecoder(data), account: account, layout: layout}
}

func (r *reader) offset() int {
	return int(r.dec.Position())
}

func (r *reader) fail(field string, offset int, err error) {
	if r.err == nil {
		r.err = newDecodeError(r.account, r.layout, field, offset, err)
	}
}

func (r *reader) bytes(field string, n int) []byte {
	if r.err != nil {
		return nil
	}
	at := r.offset()
	b, err := r.dec.ReadNBytes(n)
	if err != nil {
		r.fail(field, at, err)
		return nil
	}
	return b
}

func (r *reader) pubkey(field string) solana.PublicKey {
	b := r.bytes(field, pubkeySize)
	if b == nil {
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func (r *reader) u64(field string) uint64 {
	if r.err != nil {
		return 0
	}
	at := r.offset()
	v, err := r.dec.ReadUint64(bin.LE)
	if err != nil {
		r.fail(field, at, err)
	}
	return v
}

func (r *reader) i64(field string) int64 {
	if r.err != nil {
		return 0
	}
	at := r.offset()
	v, err := r.dec.ReadInt64(bin.LE)
	if err != nil {
		r.fail(field, at, err)
	}
	return v
}

func (r *reader) u16(field string) uint16 {
	if r.err != nil {
		return 0
	}
	at := r.offset()
	v, err := r.dec.ReadUint16(bin.LE)
	if err != nil {
		r.fail(field, at, err)
	}
	return v
}

func (r *reader) u8(field string) uint8 {
	if r.err != nil {
		return 0
	}
	at := r.offset()
	v, err := r.dec.ReadUint8()
	if err != nil {
		r.fail(field, at, err)
	}
	return v
}

// optionI64 reads a borsh Option<i64>: a tag byte, then the value only when the tag is 1.
func (r *reader) optionI64(field string) *int64 {
	at := r.offset()
	switch tag := r.u8(field); {
	case r.err != nil:
		return nil
	case tag == 0:
		return nil
	case tag == 1:
		v := r.i64(field)
		if r.err != nil {
			return nil
		}
		return &v
	default:
		r.fail(field, at, fmt.Errorf("invalid option tag %d", tag))
		return nil
	}
}

func checkSize(account solana.PublicKey, layout Layout, data []byte, want int) *DecodeError {
	if len(data) == want {
		return nil
	}
	return newDecodeError(account, layout, "", 0, fmt.Errorf("expected %d bytes, got %d", want, len(data)))
}
