package accounts

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// LimitAccountSize is the allocated size of a limit-order account.
const LimitAccountSize = 372

// Limit is a decoded limit-order account.
type Limit struct {
	Pubkey             solana.PublicKey
	Discriminator      [8]byte
	Maker              solana.PublicKey
	InputMint          solana.PublicKey
	OutputMint         solana.PublicKey
	InputTokenProgram  solana.PublicKey
	OutputTokenProgram solana.PublicKey
	InputMintReserve   solana.PublicKey
	UniqueID           uint64
	OriMakingAmount    uint64
	OriTakingAmount    uint64
	MakingAmount       uint64
	TakingAmount       uint64
	BorrowMakingAmount uint64
	// ExpiredAt is nil when the order never expires.
	ExpiredAt  *int64
	FeeBps     uint16
	FeeAccount solana.PublicKey
	CreatedAt  int64
	UpdatedAt  int64
	Bump       uint8
}

// ExpiresAt returns the expiry as a time and whether one is set.
func (l Limit) ExpiresAt() (time.Time, bool) {
	if l.ExpiredAt == nil {
		return time.Time{}, false
	}
	return time.Unix(*l.ExpiredAt, 0).UTC(), true
}

// DecodeLimit decodes one limit-order account. The buffer must be exactly LimitAccountSize
// bytes. Fields after the optional expiry are read relative to its tag.
func DecodeLimit(pubkey solana.PublicKey, data []byte) (Limit, error) {
	if derr := checkSize(pubkey, LayoutLimit, data, LimitAccountSize); derr != nil {
		return Limit{}, derr
	}
	r := newReader(pubkey, LayoutLimit, data)
	out := Limit{Pubkey: pubkey}
	copy(out.Discriminator[:], r.bytes("discriminator", discriminatorSize))
	out.Maker = r.pubkey("maker")
	out.InputMint = r.pubkey("inputMint")
	out.OutputMint = r.pubkey("outputMint")
	out.InputTokenProgram = r.pubkey("inputTokenProgram")
	out.OutputTokenProgram = r.pubkey("outputTokenProgram")
	out.InputMintReserve = r.pubkey("inputMintReserve")
	out.UniqueID = r.u64("uniqueId")
	out.OriMakingAmount = r.u64("oriMakingAmount")
	out.OriTakingAmount = r.u64("oriTakingAmount")
	out.MakingAmount = r.u64("makingAmount")
	out.TakingAmount = r.u64("takingAmount")
	out.BorrowMakingAmount = r.u64("borrowMakingAmount")
	out.ExpiredAt = r.optionI64("expiredAt")
	out.FeeBps = r.u16("feeBps")
	out.FeeAccount = r.pubkey("feeAccount")
	out.CreatedAt = r.i64("createdAt")
	out.UpdatedAt = r.i64("updatedAt")
	out.Bump = r.u8("bump")
	if r.err != nil {
		return Limit{}, r.err
	}
	return out, nil
}
