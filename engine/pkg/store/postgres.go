package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"

	"github.com/haiolabs/vesting/engine/pkg/vesting"
)

//go:embed migrations/*.sql
var EmbedMigrations embed.FS

// PgConfig holds the PostgreSQL connection configuration.
type PgConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

func (c PgConfig) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// NewPool creates and pings a PostgreSQL connection pool.
func NewPool(ctx context.Context, cfg PgConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// MigrateUp runs all pending migrations.
func MigrateUp(log *slog.Logger, connStr string) error {
	return migrate(log, connStr, "up", goose.Up)
}

// MigrateDown rolls back the last migration.
func MigrateDown(log *slog.Logger, connStr string) error {
	return migrate(log, connStr, "down", goose.Down)
}

// MigrateStatus prints the status of all migrations.
func MigrateStatus(log *slog.Logger, connStr string) error {
	return migrate(log, connStr, "status", goose.Status)
}

func migrate(log *slog.Logger, connStr, op string, fn func(*sql.DB, string, ...goose.OptionsFunc) error) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(EmbedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	log.Info("store: running migrations", "op", op)
	if err := fn(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations (%s): %w", op, err)
	}
	return nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// methods serve inside and outside a transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the production DB backed by a pgxpool. Token balances and vesting
// amounts are stored as BIGINT, so effective amounts are capped at
// math.MaxInt64; that covers the full supply of any SPL token with sane
// decimals.
type Postgres struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	q    pgQuerier
}

// PostgresConfig holds the configuration for a Postgres store.
type PostgresConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (c *PostgresConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Pool == nil {
		return errors.New("pool is required")
	}
	return nil
}

func NewPostgres(cfg *PostgresConfig) (*Postgres, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Postgres{log: cfg.Logger, pool: cfg.Pool, q: cfg.Pool}, nil
}

// InTx runs fn inside one database transaction. Nested calls run in the
// enclosing transaction.
func (p *Postgres) InTx(ctx context.Context, fn func(tx DB) error) error {
	if p.pool == nil {
		return fn(p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Postgres{log: p.log, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) GetConfig(ctx context.Context) (*vesting.ProgramConfig, error) {
	var (
		admin, collector string
		pending          *string
		deadline         *int64
		total            int64
		bump             int16
	)
	err := p.q.QueryRow(ctx, `
		SELECT admin_key, distribution_collector, pending_collector,
		       pending_collector_deadline, total_schedules, bump
		FROM program_config
	`).Scan(&admin, &collector, &pending, &deadline, &total, &bump)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, vesting.ErrConfigNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query program config: %w", err)
	}

	cfg := &vesting.ProgramConfig{
		TotalSchedules:           uint64(total),
		PendingCollectorDeadline: deadline,
		Bump:                     uint8(bump),
	}
	if cfg.Admin, err = solana.PublicKeyFromBase58(admin); err != nil {
		return nil, fmt.Errorf("failed to parse admin key: %w", err)
	}
	if cfg.DistributionCollector, err = solana.PublicKeyFromBase58(collector); err != nil {
		return nil, fmt.Errorf("failed to parse distribution collector: %w", err)
	}
	if pending != nil {
		pk, err := solana.PublicKeyFromBase58(*pending)
		if err != nil {
			return nil, fmt.Errorf("failed to parse pending collector: %w", err)
		}
		cfg.PendingCollector = &pk
	}
	return cfg, nil
}

func (p *Postgres) InitConfig(ctx context.Context, cfg *vesting.ProgramConfig, record []byte) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO program_config
			(singleton, admin_key, distribution_collector, pending_collector,
			 pending_collector_deadline, total_schedules, bump, record)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7)
	`,
		cfg.Admin.String(), cfg.DistributionCollector.String(),
		pubkeyPtr(cfg.PendingCollector), cfg.PendingCollectorDeadline,
		int64(cfg.TotalSchedules), int16(cfg.Bump), record,
	)
	if isUniqueViolation(err) {
		return vesting.ErrAlreadyInitialized
	}
	if err != nil {
		return fmt.Errorf("failed to insert program config: %w", err)
	}
	return nil
}

func (p *Postgres) SaveConfig(ctx context.Context, cfg *vesting.ProgramConfig, record []byte) error {
	tag, err := p.q.Exec(ctx, `
		UPDATE program_config SET
			distribution_collector = $1,
			pending_collector = $2,
			pending_collector_deadline = $3,
			total_schedules = $4,
			record = $5,
			updated_at = now()
	`,
		cfg.DistributionCollector.String(), pubkeyPtr(cfg.PendingCollector),
		cfg.PendingCollectorDeadline, int64(cfg.TotalSchedules), record,
	)
	if err != nil {
		return fmt.Errorf("failed to update program config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vesting.ErrConfigNotInitialized
	}
	return nil
}

const scheduleColumns = `
	schedule_id, mint, token_vault, depositor, total_amount,
	cliff_time, vesting_start_time, vesting_end_time, amount_released,
	source_category, initialized, bump
`

func (p *Postgres) InsertSchedule(ctx context.Context, s *vesting.Schedule, address solana.PublicKey, record []byte) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO vesting_schedules
			(schedule_id, address, mint, token_vault, depositor, total_amount,
			 cliff_time, vesting_start_time, vesting_end_time, amount_released,
			 source_category, initialized, bump, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		int64(s.ScheduleID), address.String(), s.Mint.String(), s.TokenVault.String(),
		s.Depositor.String(), int64(s.TotalAmount), s.CliffTime, s.VestingStartTime,
		s.VestingEndTime, int64(s.AmountReleased), int16(s.SourceCategory),
		s.Initialized, int16(s.Bump), record,
	)
	if isUniqueViolation(err) {
		return vesting.ErrScheduleIDConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (p *Postgres) GetSchedule(ctx context.Context, id uint64) (*vesting.Schedule, error) {
	row := p.q.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM vesting_schedules WHERE schedule_id = $1`,
		int64(id),
	)
	return scanSchedule(row)
}

func (p *Postgres) GetScheduleByAddress(ctx context.Context, address solana.PublicKey) (*vesting.Schedule, error) {
	row := p.q.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM vesting_schedules WHERE address = $1`,
		address.String(),
	)
	return scanSchedule(row)
}

func (p *Postgres) GetScheduleRecord(ctx context.Context, id uint64) ([]byte, error) {
	var record []byte
	err := p.q.QueryRow(ctx,
		`SELECT record FROM vesting_schedules WHERE schedule_id = $1`, int64(id),
	).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, vesting.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule record: %w", err)
	}
	return record, nil
}

func (p *Postgres) AmountReleased(ctx context.Context, id uint64) (uint64, error) {
	var released int64
	err := p.q.QueryRow(ctx,
		`SELECT amount_released FROM vesting_schedules WHERE schedule_id = $1`, int64(id),
	).Scan(&released)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, vesting.ErrScheduleNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query amount released: %w", err)
	}
	return uint64(released), nil
}

func (p *Postgres) UpdateAmountReleased(ctx context.Context, id uint64, from, to uint64, record []byte) error {
	tag, err := p.q.Exec(ctx, `
		UPDATE vesting_schedules
		SET amount_released = $3, record = $4, updated_at = now()
		WHERE schedule_id = $1 AND amount_released = $2
	`, int64(id), int64(from), int64(to), record)
	if err != nil {
		return fmt.Errorf("failed to update amount released: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.AmountReleased(ctx, id); errors.Is(err, vesting.ErrScheduleNotFound) {
			return vesting.ErrScheduleNotFound
		}
		return ErrStale
	}
	return nil
}

func (p *Postgres) DeleteSchedule(ctx context.Context, id uint64) error {
	tag, err := p.q.Exec(ctx,
		`DELETE FROM vesting_schedules WHERE schedule_id = $1`, int64(id),
	)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vesting.ErrScheduleNotFound
	}
	return nil
}

func (p *Postgres) ListUnsettled(ctx context.Context, limit int) ([]vesting.Schedule, error) {
	rows, err := p.q.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM vesting_schedules
		WHERE initialized AND amount_released < total_amount
		ORDER BY schedule_id
		LIMIT NULLIF($1, 0)
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsettled schedules: %w", err)
	}
	defer rows.Close()

	var out []vesting.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unsettled schedules: %w", err)
	}
	return out, nil
}

func (p *Postgres) AppendEvent(ctx context.Context, ev vesting.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	var runID *string
	if ev.CrankRunID != "" {
		runID = &ev.CrankRunID
	}
	if _, err := p.q.Exec(ctx, `
		INSERT INTO vesting_events (id, event_type, occurred_at, crank_run_id, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.Type, ev.OccurredAt, runID, payload); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (p *Postgres) CreateAccount(ctx context.Context, address, mint, owner solana.PublicKey) error {
	_, err := p.q.Exec(ctx, `
		INSERT INTO token_accounts (address, mint, owner_key, balance)
		VALUES ($1, $2, $3, 0)
	`, address.String(), mint.String(), owner.String())
	if isUniqueViolation(err) {
		return vesting.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("failed to create token account: %w", err)
	}
	return nil
}

func (p *Postgres) Deposit(ctx context.Context, address solana.PublicKey, amount uint64) error {
	tag, err := p.q.Exec(ctx, `
		UPDATE token_accounts SET balance = balance + $2 WHERE address = $1
	`, address.String(), int64(amount))
	if err != nil {
		return fmt.Errorf("failed to deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vesting.ErrAccountNotFound
	}
	return nil
}

func (p *Postgres) ReadAccount(ctx context.Context, address solana.PublicKey) (Account, error) {
	var (
		mint, owner string
		balance     int64
	)
	err := p.q.QueryRow(ctx,
		`SELECT mint, owner_key, balance FROM token_accounts WHERE address = $1`,
		address.String(),
	).Scan(&mint, &owner, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, vesting.ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to query token account: %w", err)
	}

	acc := Account{Address: address, Balance: uint64(balance)}
	if acc.Mint, err = solana.PublicKeyFromBase58(mint); err != nil {
		return Account{}, fmt.Errorf("failed to parse account mint: %w", err)
	}
	if acc.Owner, err = solana.PublicKeyFromBase58(owner); err != nil {
		return Account{}, fmt.Errorf("failed to parse account owner: %w", err)
	}
	return acc, nil
}

// Transfer debits one account and credits another. Both rows are locked in
// address order so concurrent transfers cannot deadlock. Callers run this
// inside InTx.
func (p *Postgres) Transfer(ctx context.Context, from, to, authority solana.PublicKey, amount uint64) error {
	first, second := from, to
	if second.String() < first.String() {
		first, second = second, first
	}
	for _, addr := range []solana.PublicKey{first, second} {
		if _, err := p.q.Exec(ctx,
			`SELECT 1 FROM token_accounts WHERE address = $1 FOR UPDATE`, addr.String(),
		); err != nil {
			return fmt.Errorf("failed to lock token account: %w", err)
		}
	}

	src, err := p.ReadAccount(ctx, from)
	if err != nil {
		return err
	}
	dst, err := p.ReadAccount(ctx, to)
	if err != nil {
		return err
	}
	if !src.Owner.Equals(authority) {
		return vesting.ErrUnauthorized
	}
	if !src.Mint.Equals(dst.Mint) {
		return vesting.ErrMintMismatch
	}
	if src.Balance < amount {
		return vesting.ErrInsufficientFunds
	}

	if _, err := p.q.Exec(ctx,
		`UPDATE token_accounts SET balance = balance - $2 WHERE address = $1`,
		from.String(), int64(amount),
	); err != nil {
		return fmt.Errorf("failed to debit source account: %w", err)
	}
	if _, err := p.q.Exec(ctx,
		`UPDATE token_accounts SET balance = balance + $2 WHERE address = $1`,
		to.String(), int64(amount),
	); err != nil {
		return fmt.Errorf("failed to credit destination account: %w", err)
	}
	return nil
}

func (p *Postgres) CloseAccount(ctx context.Context, address solana.PublicKey) error {
	acc, err := p.ReadAccount(ctx, address)
	if err != nil {
		return err
	}
	if acc.Balance != 0 {
		return vesting.ErrVaultNotEmpty
	}
	if _, err := p.q.Exec(ctx,
		`DELETE FROM token_accounts WHERE address = $1`, address.String(),
	); err != nil {
		return fmt.Errorf("failed to delete token account: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*vesting.Schedule, error) {
	var (
		id, total, released    int64
		mint, vault, depositor string
		category, bump         int16
		s                      vesting.Schedule
	)
	err := row.Scan(
		&id, &mint, &vault, &depositor, &total,
		&s.CliffTime, &s.VestingStartTime, &s.VestingEndTime, &released,
		&category, &s.Initialized, &bump,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, vesting.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	s.ScheduleID = uint64(id)
	s.TotalAmount = uint64(total)
	s.AmountReleased = uint64(released)
	s.SourceCategory = vesting.SourceCategory(category)
	s.Bump = uint8(bump)
	if s.Mint, err = solana.PublicKeyFromBase58(mint); err != nil {
		return nil, fmt.Errorf("failed to parse schedule mint: %w", err)
	}
	if s.TokenVault, err = solana.PublicKeyFromBase58(vault); err != nil {
		return nil, fmt.Errorf("failed to parse schedule vault: %w", err)
	}
	if s.Depositor, err = solana.PublicKeyFromBase58(depositor); err != nil {
		return nil, fmt.Errorf("failed to parse schedule depositor: %w", err)
	}
	return &s, nil
}

func pubkeyPtr(pk *solana.PublicKey) *string {
	if pk == nil {
		return nil
	}
	s := pk.String()
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
