package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/haiolabs/vesting/engine/pkg/store"
	"github.com/haiolabs/vesting/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// PostgreSQL configuration
	pgHostFlag := flag.String("pg-host", "localhost", "PostgreSQL host (or set PG_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "PostgreSQL port (or set PG_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "vesting", "PostgreSQL database name (or set PG_DATABASE env var)")
	pgUsernameFlag := flag.String("pg-username", "vesting", "PostgreSQL username (or set PG_USERNAME env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set PG_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "PostgreSQL sslmode (or set PG_SSLMODE env var)")

	// Commands
	migrateFlag := flag.Bool("migrate", false, "Run pending database migrations using goose")
	migrateDownFlag := flag.Bool("migrate-down", false, "Roll back the most recent migration")
	migrateStatusFlag := flag.Bool("migrate-status", false, "Show database migration status")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
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

	connStr := store.PgConfig{
		Host:     *pgHostFlag,
		Port:     *pgPortFlag,
		Database: *pgDatabaseFlag,
		Username: *pgUsernameFlag,
		Password: *pgPasswordFlag,
		SSLMode:  *pgSSLModeFlag,
	}.ConnString()

	switch {
	case *migrateFlag:
		return store.MigrateUp(log, connStr)
	case *migrateDownFlag:
		return store.MigrateDown(log, connStr)
	case *migrateStatusFlag:
		return store.MigrateStatus(log, connStr)
	}

	flag.Usage()
	return nil
}
