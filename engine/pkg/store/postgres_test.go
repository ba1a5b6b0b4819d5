package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/haiolabs/vesting/engine/pkg/pgtesting"
	"github.com/haiolabs/vesting/engine/pkg/store"
	"github.com/haiolabs/vesting/engine/pkg/vesting"
	vestingtesting "github.com/haiolabs/vesting/utils/pkg/testing"
)

// The container is shared across the package, so tests that hit Postgres
// truncate first and run sequentially.
func newTestStore(t *testing.T) (*store.Postgres, *pgxpool.Pool) {
	pool := pgtesting.NewTestPool(t, startTestDB(t))
	_, err := pool.Exec(t.Context(),
		`TRUNCATE program_config, vesting_schedules, token_accounts, vesting_events`)
	require.NoError(t, err)

	pg, err := store.NewPostgres(&store.PostgresConfig{
		Logger: vestingtesting.NewLogger(),
		Pool:   pool,
	})
	require.NoError(t, err)
	return pg, pool
}

func testSchedule(id uint64) *vesting.Schedule {
	return &vesting.Schedule{
		ScheduleID:       id,
		Mint:             solana.NewWallet().PublicKey(),
		TokenVault:       solana.NewWallet().PublicKey(),
		Depositor:        solana.NewWallet().PublicKey(),
		TotalAmount:      1_000_000,
		CliffTime:        100,
		VestingStartTime: 100,
		VestingEndTime:   200,
		SourceCategory:   vesting.CategorySeed,
		Initialized:      true,
		Bump:             254,
	}
}

func TestVesting_Store_Postgres_NewPostgres(t *testing.T) {
	t.Parallel()

	t.Run("missing logger", func(t *testing.T) {
		t.Parallel()
		_, err := store.NewPostgres(&store.PostgresConfig{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "logger is required")
	})

	t.Run("missing pool", func(t *testing.T) {
		t.Parallel()
		_, err := store.NewPostgres(&store.PostgresConfig{
			Logger: vestingtesting.NewLogger(),
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "pool is required")
	})
}

func TestVesting_Store_Postgres_Config(t *testing.T) {
	pg, _ := newTestStore(t)
	ctx := context.Background()

	_, err := pg.GetConfig(ctx)
	require.ErrorIs(t, err, vesting.ErrConfigNotInitialized)

	cfg := &vesting.ProgramConfig{
		Admin:                 solana.NewWallet().PublicKey(),
		DistributionCollector: solana.NewWallet().PublicKey(),
		Bump:                  255,
	}
	require.NoError(t, pg.InitConfig(ctx, cfg, []byte{1, 2, 3}))

	got, err := pg.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, cfg, got)

	require.ErrorIs(t, pg.InitConfig(ctx, cfg, nil), vesting.ErrAlreadyInitialized)

	pending := solana.NewWallet().PublicKey()
	deadline := time.Now().Unix() + 3600
	cfg.PendingCollector = &pending
	cfg.PendingCollectorDeadline = &deadline
	cfg.TotalSchedules = 2
	require.NoError(t, pg.SaveConfig(ctx, cfg, []byte{4, 5}))

	got, err = pg.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestVesting_Store_Postgres_Schedules(t *testing.T) {
	pg, _ := newTestStore(t)
	ctx := context.Background()

	s := testSchedule(0)
	addr := solana.NewWallet().PublicKey()
	record := []byte{0xde, 0xad}
	require.NoError(t, pg.InsertSchedule(ctx, s, addr, record))

	t.Run("duplicate id is rejected", func(t *testing.T) {
		err := pg.InsertSchedule(ctx, s, solana.NewWallet().PublicKey(), record)
		require.ErrorIs(t, err, vesting.ErrScheduleIDConflict)
	})

	t.Run("lookup by id and address", func(t *testing.T) {
		got, err := pg.GetSchedule(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, s, got)

		got, err = pg.GetScheduleByAddress(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, s, got)

		_, err = pg.GetSchedule(ctx, 99)
		require.ErrorIs(t, err, vesting.ErrScheduleNotFound)
	})

	t.Run("record blob round trips", func(t *testing.T) {
		got, err := pg.GetScheduleRecord(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, record, got)
	})

	t.Run("released counter advances only from expected value", func(t *testing.T) {
		released, err := pg.AmountReleased(ctx, 0)
		require.NoError(t, err)
		require.Zero(t, released)

		require.NoError(t, pg.UpdateAmountReleased(ctx, 0, 0, 500, []byte{1}))

		err = pg.UpdateAmountReleased(ctx, 0, 0, 900, []byte{2})
		require.ErrorIs(t, err, store.ErrStale)

		err = pg.UpdateAmountReleased(ctx, 99, 0, 1, nil)
		require.ErrorIs(t, err, vesting.ErrScheduleNotFound)

		released, err = pg.AmountReleased(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(500), released)
	})

	t.Run("unsettled listing orders by id and excludes settled", func(t *testing.T) {
		settled := testSchedule(1)
		settled.AmountReleased = settled.TotalAmount
		require.NoError(t, pg.InsertSchedule(ctx, settled, solana.NewWallet().PublicKey(), record))
		require.NoError(t, pg.InsertSchedule(ctx, testSchedule(2), solana.NewWallet().PublicKey(), record))

		got, err := pg.ListUnsettled(ctx, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, uint64(0), got[0].ScheduleID)
		require.Equal(t, uint64(2), got[1].ScheduleID)

		got, err = pg.ListUnsettled(ctx, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, pg.DeleteSchedule(ctx, 2))
		require.ErrorIs(t, pg.DeleteSchedule(ctx, 2), vesting.ErrScheduleNotFound)
	})
}

func TestVesting_Store_Postgres_TokenAccounts(t *testing.T) {
	pg, _ := newTestStore(t)
	ctx := context.Background()

	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	src := solana.NewWallet().PublicKey()
	dst := solana.NewWallet().PublicKey()

	require.NoError(t, pg.CreateAccount(ctx, src, mint, owner))
	require.NoError(t, pg.CreateAccount(ctx, dst, mint, solana.NewWallet().PublicKey()))
	require.ErrorIs(t, pg.CreateAccount(ctx, src, mint, owner), vesting.ErrAccountExists)

	require.NoError(t, pg.Deposit(ctx, src, 1000))
	require.ErrorIs(t, pg.Deposit(ctx, solana.NewWallet().PublicKey(), 1), vesting.ErrAccountNotFound)

	acc, err := pg.ReadAccount(ctx, src)
	require.NoError(t, err)
	require.Equal(t, store.Account{Address: src, Mint: mint, Owner: owner, Balance: 1000}, acc)

	t.Run("transfer requires the source owner as authority", func(t *testing.T) {
		err := pg.Transfer(ctx, src, dst, solana.NewWallet().PublicKey(), 100)
		require.ErrorIs(t, err, vesting.ErrUnauthorized)
	})

	t.Run("transfer rejects a cross-mint destination", func(t *testing.T) {
		other := solana.NewWallet().PublicKey()
		require.NoError(t, pg.CreateAccount(ctx, other, solana.NewWallet().PublicKey(), owner))
		err := pg.Transfer(ctx, src, other, owner, 100)
		require.ErrorIs(t, err, vesting.ErrMintMismatch)
	})

	t.Run("transfer rejects overdraw", func(t *testing.T) {
		err := pg.Transfer(ctx, src, dst, owner, 2000)
		require.ErrorIs(t, err, vesting.ErrInsufficientFunds)
	})

	t.Run("transfer moves the balance", func(t *testing.T) {
		require.NoError(t, pg.Transfer(ctx, src, dst, owner, 400))

		srcAcc, err := pg.ReadAccount(ctx, src)
		require.NoError(t, err)
		require.Equal(t, uint64(600), srcAcc.Balance)

		dstAcc, err := pg.ReadAccount(ctx, dst)
		require.NoError(t, err)
		require.Equal(t, uint64(400), dstAcc.Balance)
	})

	t.Run("close requires a zero balance", func(t *testing.T) {
		require.ErrorIs(t, pg.CloseAccount(ctx, src), vesting.ErrVaultNotEmpty)

		require.NoError(t, pg.Transfer(ctx, src, dst, owner, 600))
		require.NoError(t, pg.CloseAccount(ctx, src))

		_, err := pg.ReadAccount(ctx, src)
		require.ErrorIs(t, err, vesting.ErrAccountNotFound)
	})
}

func TestVesting_Store_Postgres_InTx(t *testing.T) {
	pg, pool := newTestStore(t)
	ctx := context.Background()

	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	acct := solana.NewWallet().PublicKey()

	t.Run("rollback on error leaves no effect", func(t *testing.T) {
		boom := errors.New("boom")
		err := pg.InTx(ctx, func(tx store.DB) error {
			if err := tx.CreateAccount(ctx, acct, mint, owner); err != nil {
				return err
			}
			if err := tx.Deposit(ctx, acct, 500); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = pg.ReadAccount(ctx, acct)
		require.ErrorIs(t, err, vesting.ErrAccountNotFound)
	})

	t.Run("commit persists all writes", func(t *testing.T) {
		ev := vesting.NewEvent(vesting.EventScheduleCreated, time.Now().UTC(),
			vesting.ScheduleCreatedPayload{ScheduleID: 7})
		err := pg.InTx(ctx, func(tx store.DB) error {
			if err := tx.CreateAccount(ctx, acct, mint, owner); err != nil {
				return err
			}
			if err := tx.Deposit(ctx, acct, 500); err != nil {
				return err
			}
			return tx.AppendEvent(ctx, ev)
		})
		require.NoError(t, err)

		acc, err := pg.ReadAccount(ctx, acct)
		require.NoError(t, err)
		require.Equal(t, uint64(500), acc.Balance)

		var (
			id        uuid.UUID
			eventType string
		)
		err = pool.QueryRow(ctx,
			`SELECT id, event_type FROM vesting_events`).Scan(&id, &eventType)
		require.NoError(t, err)
		require.Equal(t, ev.ID, id)
		require.Equal(t, vesting.EventScheduleCreated, eventType)
	})
}
