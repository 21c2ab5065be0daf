package postgres

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "tally_schema_migrations"

// Migrate applies pending profile-store migrations. It is safe to call on
// every start. The migration runs on its own database/sql handle so that
// closing it releases the borrowed pool connection.
func Migrate(pool *pgxpool.Pool, logger *slog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening migration source: %w", err)
	}

	db := OpenDB(pool)
	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("creating migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("closing migration source", slog.String("error", srcErr.Error()))
		}
		if dbErr != nil {
			logger.Warn("closing migration database", slog.String("error", dbErr.Error()))
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("profile store up to date")
			return nil
		}
		return fmt.Errorf("running migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("profile store migrated", slog.Uint64("version", uint64(version)))
	return nil
}
