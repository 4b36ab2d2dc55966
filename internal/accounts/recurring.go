package accounts

import (
	"github.com/gagliardetto/solana-go"
)

// RecurringAccountSize is the allocated size of a DCA account, trailing padding included.
const RecurringAccountSize = 289

// Recurring is a decoded DCA account.
type Recurring struct {
	Pubkey                 solana.PublicKey
	Discriminator          [8]byte
	User                   solana.PublicKey
	InputMint              solana.PublicKey
	OutputMint             solana.PublicKey
	Idx                    uint64
	NextCycleAt            int64
	InDeposited            uint64
	InWithdrawn            uint64
	OutWithdrawn           uint64
	InUsed                 uint64
	OutReceived            uint64
	InAmountPerCycle       uint64
	CycleFrequency         int64
	NextCycleAmountLeft    uint64
	InAccount              solana.PublicKey
	OutAccount             solana.PublicKey
	MinOutAmount           uint64
	MaxOutAmount           uint64
	KeeperInAmountPerCycle uint64
	CreatedAt              int64
	Bump                   uint8
}

// DecodeRecurring decodes one DCA account. The buffer must be exactly RecurringAccountSize bytes.
func DecodeRecurring(pubkey solana.PublicKey, data []byte) (Recurring, error) {
	if derr := checkSize(pubkey, LayoutRecurring, data, RecurringAccountSize); derr != nil {
		return Recurring{}, derr
	}
	r := newReader(pubkey, LayoutRecurring, data)
	out := Recurring{Pubkey: pubkey}
	copy(out.Discriminator[:], r.bytes("discriminator", discriminatorSize))
	out.User = r.pubkey("user")
	out.InputMint = r.pubkey("inputMint")
	out.OutputMint = r.pubkey("outputMint")
	out.Idx = r.u64("idx")
	out.NextCycleAt = r.i64("nextCycleAt")
	out.InDeposited = r.u64("inDeposited")
	out.InWithdrawn = r.u64("inWithdrawn")
	out.OutWithdrawn = r.u64("outWithdrawn")
	out.InUsed = r.u64("inUsed")
	out.OutReceived = r.u64("outReceived")
	out.InAmountPerCycle = r.u64("inAmountPerCycle")
	out.CycleFrequency = r.i64("cycleFrequency")
	out.NextCycleAmountLeft = r.u64("nextCycleAmountLeft")
	out.InAccount = r.pubkey("inAccount")
	out.OutAccount = r.pubkey("outAccount")
	out.MinOutAmount = r.u64("minOutAmount")
	out.MaxOutAmount = r.u64("maxOutAmount")
	out.KeeperInAmountPerCycle = r.u64("keeperInAmountPerCycle")
	out.CreatedAt = r.i64("createdAt")
	out.Bump = r.u8("bump")
	if r.err != nil {
		return Recurring{}, r.err
	}
	return out, nil
}
