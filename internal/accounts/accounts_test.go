package accounts

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderlens/errs"
)

var (
	chaosMint = solana.MustPublicKeyFromBase58("8SgNwESovnbG1oNEaPVhg6CR9mTMSK7jPvcYRe3wpump")
	usdcMint  = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func sampleLimit(expiry *int64) Limit {
	return Limit{
		Discriminator:      [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		Maker:              solana.NewWallet().PublicKey(),
		InputMint:          usdcMint,
		OutputMint:         chaosMint,
		InputTokenProgram:  solana.TokenProgramID,
		OutputTokenProgram: solana.TokenProgramID,
		InputMintReserve:   solana.NewWallet().PublicKey(),
		UniqueID:           77,
		OriMakingAmount:    5_000_000,
		OriTakingAmount:    1_000_000_000,
		MakingAmount:       4_000_000,
		TakingAmount:       800_000_000,
		BorrowMakingAmount: 0,
		ExpiredAt:          expiry,
		FeeBps:             10,
		FeeAccount:         solana.NewWallet().PublicKey(),
		CreatedAt:          1_700_000_000,
		UpdatedAt:          1_700_000_500,
		Bump:               254,
	}
}

func sampleRecurring() Recurring {
	return Recurring{
		User:                   solana.NewWallet().PublicKey(),
		InputMint:              usdcMint,
		OutputMint:             chaosMint,
		Idx:                    3,
		NextCycleAt:            1_700_003_600,
		InDeposited:            1_000,
		InUsed:                 300,
		OutReceived:            42,
		InAmountPerCycle:       100,
		CycleFrequency:         3_600,
		NextCycleAmountLeft:    100,
		InAccount:              solana.NewWallet().PublicKey(),
		OutAccount:             solana.NewWallet().PublicKey(),
		MinOutAmount:           10,
		MaxOutAmount:           20,
		KeeperInAmountPerCycle: 100,
		CreatedAt:              1_700_000_000,
		Bump:                   253,
	}
}

func TestDecodeLimitWithoutExpiry(t *testing.T) {
	want := sampleLimit(nil)
	want.Pubkey = solana.NewWallet().PublicKey()
	data, err := EncodeLimit(want)
	require.NoError(t, err)
	require.Len(t, data, LimitAccountSize)

	require.Equal(t, usdcMint[:], data[InputMintOffset:InputMintOffset+32])
	require.Equal(t, chaosMint[:], data[OutputMintOffset:OutputMintOffset+32])
	require.Equal(t, byte(0), data[248], "option tag")
	require.Equal(t, uint16(10), binary.LittleEndian.Uint16(data[249:251]))

	got, err := DecodeLimit(want.Pubkey, data)
	require.NoError(t, err)
	require.Equal(t, want, got)
	_, ok := got.ExpiresAt()
	require.False(t, ok)
}

func TestDecodeLimitWithExpiryShiftsTrailingFields(t *testing.T) {
	expiry := int64(1_800_000_000)
	want := sampleLimit(&expiry)
	data, err := EncodeLimit(want)
	require.NoError(t, err)

	require.Equal(t, byte(1), data[248])
	require.Equal(t, uint64(expiry), binary.LittleEndian.Uint64(data[249:257]))
	require.Equal(t, uint16(10), binary.LittleEndian.Uint16(data[257:259]))
	require.Equal(t, uint64(want.CreatedAt), binary.LittleEndian.Uint64(data[291:299]))

	got, err := DecodeLimit(solana.PublicKey{}, data)
	require.NoError(t, err)
	require.NotNil(t, got.ExpiredAt)
	require.Equal(t, expiry, *got.ExpiredAt)
	require.Equal(t, want.FeeAccount, got.FeeAccount)
	require.Equal(t, want.UpdatedAt, got.UpdatedAt)
	at, ok := got.ExpiresAt()
	require.True(t, ok)
	require.Equal(t, expiry, at.Unix())
}

func TestDecodeLimitRejectsBadSizeAndTag(t *testing.T) {
	data, err := EncodeLimit(sampleLimit(nil))
	require.NoError(t, err)

	_, err = DecodeLimit(solana.PublicKey{}, data[:200])
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, LayoutLimit, derr.Layout)
	require.True(t, errs.Is(err, errs.CodeDecode))

	_, err = DecodeLimit(solana.PublicKey{}, append(data, 0))
	require.Error(t, err)

	data[248] = 7
	_, err = DecodeLimit(solana.PublicKey{}, data)
	require.ErrorAs(t, err, &derr)
	require.Equal(t, "expiredAt", derr.Field)
	require.Equal(t, 248, derr.Offset)
}

func TestDecodeRecurringRoundTrip(t *testing.T) {
	want := sampleRecurring()
	want.Pubkey = solana.NewWallet().PublicKey()
	data, err := EncodeRecurring(want)
	require.NoError(t, err)
	require.Len(t, data, RecurringAccountSize)
	require.Equal(t, chaosMint[:], data[OutputMintOffset:OutputMintOffset+32])
	require.Equal(t, uint64(1_000), binary.LittleEndian.Uint64(data[120:128]))

	got, err := DecodeRecurring(want.Pubkey, data)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeRecurringKeepsFullUint64(t *testing.T) {
	want := sampleRecurring()
	want.InDeposited = 1<<63 + 12345
	data, err := EncodeRecurring(want)
	require.NoError(t, err)

	got, err := DecodeRecurring(solana.PublicKey{}, data)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<63+12345), got.InDeposited)
}

func TestDecodeBatchSkipsMalformedRecords(t *testing.T) {
	good, err := EncodeRecurring(sampleRecurring())
	require.NoError(t, err)
	badKey := solana.NewWallet().PublicKey()

	raws := []Raw{
		{Pubkey: solana.NewWallet().PublicKey(), Data: good},
		{Pubkey: badKey, Data: good[:100]},
		{Pubkey: solana.NewWallet().PublicKey(), Data: good},
	}
	records, failures := DecodeRecurringBatch(raws)
	require.Len(t, records, 2)
	require.Equal(t, raws[0].Pubkey, records[0].Pubkey)
	require.Equal(t, raws[2].Pubkey, records[1].Pubkey)
	require.Len(t, failures, 1)
	require.Equal(t, badKey.String(), failures[0].Account)
	require.True(t, errs.Is(failures[0], errs.CodeDecode))
}

func TestDecodeLimitBatchEmpty(t *testing.T) {
	records, failures := DecodeLimitBatch(nil)
	require.Empty(t, records)
	require.Empty(t, failures)
}
