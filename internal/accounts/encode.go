package accounts

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// writer mirrors reader for building account buffers; the first error sticks.
type writer struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newWriter() *writer {
	w := &writer{}
	w.enc = bin.NewBorshEncoder(&w.buf)
	return w
}

func (w *writer) raw(b []byte) {
	if w.err == nil {
		w.err = w.enc.WriteBytes(b, false)
	}
}

func (w *writer) pubkey(key solana.PublicKey) { w.raw(key[:]) }

func (w *writer) u64(v uint64) {
	if w.err == nil {
		w.err = w.enc.WriteUint64(v, bin.LE)
	}
}

func (w *writer) i64(v int64) {
	if w.err == nil {
		w.err = w.enc.WriteInt64(v, bin.LE)
	}
}

func (w *writer) u16(v uint16) {
	if w.err == nil {
		w.err = w.enc.WriteUint16(v, bin.LE)
	}
}

func (w *writer) u8(v uint8) {
	if w.err == nil {
		w.err = w.enc.WriteUint8(v)
	}
}

func (w *writer) padTo(size int) ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.buf.Len() > size {
		return nil, fmt.Errorf("encoded %d bytes exceeds account size %d", w.buf.Len(), size)
	}
	out := make([]byte, size)
	copy(out, w.buf.Bytes())
	return out, nil
}

// EncodeLimit serialises a limit-order account into its on-chain layout.
func EncodeLimit(l Limit) ([]byte, error) {
	w := newWriter()
	w.raw(l.Discriminator[:])
	w.pubkey(l.Maker)
	w.pubkey(l.InputMint)
	w.pubkey(l.OutputMint)
	w.pubkey(l.InputTokenProgram)
	w.pubkey(l.OutputTokenProgram)
	w.pubkey(l.InputMintReserve)
	w.u64(l.UniqueID)
	w.u64(l.OriMakingAmount)
	w.u64(l.OriTakingAmount)
	w.u64(l.MakingAmount)
	w.u64(l.TakingAmount)
	w.u64(l.BorrowMakingAmount)
	if l.ExpiredAt != nil {
		w.u8(1)
		w.i64(*l.ExpiredAt)
	} else {
		w.u8(0)
	}
	w.u16(l.FeeBps)
	w.pubkey(l.FeeAccount)
	w.i64(l.CreatedAt)
	w.i64(l.UpdatedAt)
	w.u8(l.Bump)
	return w.padTo(LimitAccountSize)
}

// EncodeRecurring serialises a DCA account into its on-chain layout.
func EncodeRecurring(r Recurring) ([]byte, error) {
	w := newWriter()
	w.raw(r.Discriminator[:])
	w.pubkey(r.User)
	w.pubkey(r.InputMint)
	w.pubkey(r.OutputMint)
	w.u64(r.Idx)
	w.i64(r.NextCycleAt)
	w.u64(r.InDeposited)
	w.u64(r.InWithdrawn)
	w.u64(r.OutWithdrawn)
	w.u64(r.InUsed)
	w.u64(r.OutReceived)
	w.u64(r.InAmountPerCycle)
	w.i64(r.CycleFrequency)
	w.u64(r.NextCycleAmountLeft)
	w.pubkey(r.InAccount)
	w.pubkey(r.OutAccount)
	w.u64(r.MinOutAmount)
	w.u64(r.MaxOutAmount)
	w.u64(r.KeeperInAmountPerCycle)
	w.i64(r.CreatedAt)
	w.u8(r.Bump)
	return w.padTo(RecurringAccountSize)
}
