package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/haiolabs/vesting/engine/pkg/crank"
	"github.com/haiolabs/vesting/engine/pkg/engine"
	"github.com/haiolabs/vesting/engine/pkg/metrics"
	"github.com/haiolabs/vesting/engine/pkg/server"
	"github.com/haiolabs/vesting/engine/pkg/store"
	"github.com/haiolabs/vesting/utils/pkg/logger"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (dev convenience)
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", ":8080", "HTTP listen address")
	programIDFlag := flag.String("program-id", "", "program id used to derive schedule and vault addresses (or set VESTING_PROGRAM_ID env var)")
	rotationDelayFlag := flag.Duration("rotation-delay", 0, "collector rotation timelock delay (0 = default 48h)")

	// Store configuration
	memoryFlag := flag.Bool("memory", false, "run against an in-memory store (dev mode, state is lost on exit)")
	migrateFlag := flag.Bool("migrations-enable", false, "run pending database migrations on startup")
	pgHostFlag := flag.String("pg-host", "localhost", "PostgreSQL host (or set PG_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "PostgreSQL port (or set PG_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "vesting", "PostgreSQL database name (or set PG_DATABASE env var)")
	pgUsernameFlag := flag.String("pg-username", "vesting", "PostgreSQL username (or set PG_USERNAME env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set PG_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "PostgreSQL sslmode (or set PG_SSLMODE env var)")

	// Crank worker configuration
	crankEnableFlag := flag.Bool("crank-enable", false, "run the background crank worker")
	crankCollectorAccountFlag := flag.String("crank-collector-account", "", "collector token account the worker settles into (or set VESTING_CRANK_COLLECTOR_ACCOUNT env var)")
	crankIntervalFlag := flag.Duration("crank-interval", time.Minute, "crank worker cycle interval")
	crankBatchSizeFlag := flag.Int("crank-batch-size", 0, "schedules per crank call (0 = hard cap)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
	if env := os.Getenv("VESTING_PROGRAM_ID"); env != "" {
		*programIDFlag = env
	}
	if env := os.Getenv("VESTING_CRANK_COLLECTOR_ACCOUNT"); env != "" {
		*crankCollectorAccountFlag = env
	}
	if env := os.Getenv("PG_HOST"); env != "" {
		*pgHostFlag = env
	}
	if env := os.Getenv("PG_PORT"); env != "" {
		*pgPortFlag = env
	}
	if env := os.Getenv("PG_DATABASE"); env != "" {
		*pgDatabaseFlag = env
	}
	if env := os.Getenv("PG_USERNAME"); env != "" {
		*pgUsernameFlag = env
	}
	if env := os.Getenv("PG_PASSWORD"); env != "" {
		*pgPasswordFlag = env
	}
	if env := os.Getenv("PG_SSLMODE"); env != "" {
		*pgSSLModeFlag = env
	}

	if *programIDFlag == "" {
		return fmt.Errorf("--program-id is required")
	}
	programID, err := solana.PublicKeyFromBase58(*programIDFlag)
	if err != nil {
		return fmt.Errorf("invalid --program-id: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db store.DB
	if *memoryFlag {
		log.Warn("using in-memory store, state is lost on exit")
		db = store.NewMemory()
	} else {
		pgCfg := store.PgConfig{
			Host:     *pgHostFlag,
			Port:     *pgPortFlag,
			Database: *pgDatabaseFlag,
			Username: *pgUsernameFlag,
			Password: *pgPasswordFlag,
			SSLMode:  *pgSSLModeFlag,
		}
		if *migrateFlag {
			if err := store.MigrateUp(log, pgCfg.ConnString()); err != nil {
				return err
			}
		}
		pool, err := store.NewPool(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		db, err = store.NewPostgres(&store.PostgresConfig{
			Logger: log,
			Pool:   pool,
		})
		if err != nil {
			return err
		}
	}

	eng, err := engine.New(&engine.Config{
		Logger:        log,
		DB:            db,
		ProgramID:     programID,
		RotationDelay: *rotationDelayFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:     log,
		Engine:     eng,
		ListenAddr: *listenAddrFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
	log.Info("starting vestingd",
		"version", version,
		"program_id", programID,
		"listen_addr", *listenAddrFlag,
		"crank_enabled", *crankEnableFlag,
	)

	if *crankEnableFlag {
		if *crankCollectorAccountFlag == "" {
			return fmt.Errorf("--crank-collector-account is required with --crank-enable")
		}
		collectorAccount, err := solana.PublicKeyFromBase58(*crankCollectorAccountFlag)
		if err != nil {
			return fmt.Errorf("invalid --crank-collector-account: %w", err)
		}
		worker, err := crank.NewWorker(crank.WorkerConfig{
			Logger:           log,
			Engine:           eng,
			CollectorAccount: collectorAccount,
			Interval:         *crankIntervalFlag,
			BatchSize:        *crankBatchSizeFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create crank worker: %w", err)
		}
		worker.Start(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	return g.Wait()
}
