package codec

import (
	"crypto/sha256"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

func TestVesting_Codec_ScheduleRecord(t *testing.T) {
	t.Parallel()

	s := &vesting.Schedule{
		ScheduleID:       3,
		Mint:             solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
		TokenVault:       solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111"),
		Depositor:        solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111"),
		TotalAmount:      1_000_000,
		CliffTime:        100,
		VestingStartTime: 100,
		VestingEndTime:   200,
		AmountReleased:   250_000,
		SourceCategory:   vesting.CategoryEcosystem,
		Initialized:      true,
		Bump:             254,
	}

	data, err := EncodeSchedule(s)
	require.NoError(t, err)

	// disc(8) + u64 + 3*pubkey(32) + u64 + 3*i64 + u64 + category(1) +
	// initialized(1) + bump(1)
	require.Len(t, data, 8+8+96+8+24+8+1+1+1)

	wantDisc := sha256.Sum256([]byte("account:VestingSchedule"))
	require.Equal(t, wantDisc[:8], data[:8])

	got, err := DecodeSchedule(data)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestVesting_Codec_ScheduleRecord_Rejects(t *testing.T) {
	t.Parallel()

	t.Run("short record", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeSchedule([]byte{1, 2, 3})
		require.ErrorIs(t, err, ErrShortRecord)
	})

	t.Run("wrong discriminator", func(t *testing.T) {
		t.Parallel()
		cfg := &vesting.ProgramConfig{}
		data, err := EncodeConfig(cfg)
		require.NoError(t, err)
		_, err = DecodeSchedule(data)
		require.ErrorIs(t, err, ErrBadDiscriminator)
	})
}

func TestVesting_Codec_ConfigRecord(t *testing.T) {
	t.Parallel()

	t.Run("no pending rotation", func(t *testing.T) {
		t.Parallel()
		c := &vesting.ProgramConfig{
			Admin:                 solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
			DistributionCollector: solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111"),
			TotalSchedules:        5,
			Bump:                  255,
		}
		data, err := EncodeConfig(c)
		require.NoError(t, err)
		// disc(8) + 2*pubkey(32) + none(1) + none(1) + u64 + bump(1)
		require.Len(t, data, 8+64+1+1+8+1)

		got, err := DecodeConfig(data)
		require.NoError(t, err)
		require.Equal(t, c, got)
	})

	t.Run("pending rotation set", func(t *testing.T) {
		t.Parallel()
		pending := solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")
		deadline := int64(1_700_000_000)
		c := &vesting.ProgramConfig{
			Admin:                    solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
			DistributionCollector:    solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111"),
			PendingCollector:         &pending,
			PendingCollectorDeadline: &deadline,
			TotalSchedules:           9,
			Bump:                     253,
		}
		data, err := EncodeConfig(c)
		require.NoError(t, err)
		// disc(8) + 2*pubkey(32) + some(1+32) + some(1+8) + u64 + bump(1)
		require.Len(t, data, 8+64+33+9+8+1)

		got, err := DecodeConfig(data)
		require.NoError(t, err)
		require.Equal(t, c, got)
	})
}
