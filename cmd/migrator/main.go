package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/pflag"

	"github.com/Shivanand-hulikatti/event-booking/internal/config"
)

const (
	migrationUp   = "up"
	migrationDown = "down"
)

func mustMigrateUp(m *migrate.Migrate) {
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}

		panic(err)
	}

	fmt.Println("migrations applied successfully")
}

func mustMigrateDown(m *migrate.Migrate) {
	if err := m.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}

		panic(err)
	}

	fmt.Println("migrations downed successfully")
}

// The SQLite store creates its own schema; migrations are for PostgreSQL only.
func main() {
	var configPath, migrationsPath, migrationsTable, migrationType string
	flags := pflag.NewFlagSet("migrator", pflag.ExitOnError)
	flags.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flags.StringVar(&migrationType, "migration-type", migrationUp, "migration type (up|down)")
	flags.StringVar(&migrationsPath, "migrations-path", "migrations", "path to migrations")
	flags.StringVar(&migrationsTable, "migrations-table", "schema_migrations", "name of migrations table")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		cfg.Storage.Postgres.URL("pgx5")+"&x-migrations-table="+migrationsTable,
	)
	if err != nil {
		panic(err)
	}
	defer m.Close()

	switch migrationType {
	case migrationUp:
		mustMigrateUp(m)
	case migrationDown:
		mustMigrateDown(m)
	default:
		panic(fmt.Sprintf("unknown migration type %q", migrationType))
	}
}
