package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Migration System Overview:
//
// SQL drivers: a fresh database gets migration/{driver}/LATEST.sql. Afterwards
// every migration/{driver}/patch/NN__description.sql not yet recorded in
// migration_history is applied in lexical order, each in its own transaction.
//
// Document drivers (mongo) have no schema; they implement IndexDriver and
// Migrate only ensures their indexes.

//go:embed migration
var migrationFS embed.FS

const (
	// MigrateFileNameSplit is the split character between the patch number and the description.
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName is the full schema applied to fresh installations.
	LatestSchemaFileName = "LATEST.sql"
)

// SQLDriver is implemented by drivers backed by database/sql.
type SQLDriver interface {
	GetDB() *sql.DB
}

// IndexDriver is implemented by drivers that prepare indexes instead of a schema.
type IndexDriver interface {
	EnsureIndexes(ctx context.Context) error
}

// Migrate brings the backend schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	switch d := s.driver.(type) {
	case IndexDriver:
		if err := d.EnsureIndexes(ctx); err != nil {
			return errors.Wrap(err, "failed to ensure indexes")
		}
		return nil
	case SQLDriver:
		if err := s.preMigrate(ctx, d.GetDB()); err != nil {
			return errors.Wrap(err, "failed to pre-migrate")
		}
		return s.applyPatches(ctx, d.GetDB())
	default:
		return errors.Errorf("driver %T supports neither SQL nor index migration", s.driver)
	}
}

// preMigrate applies the latest schema to an uninitialized database.
func (s *Store) preMigrate(ctx context.Context, db *sql.DB) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := s.getMigrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema file %s", filePath)
	}

	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	return s.inTx(ctx, db, func(tx *sql.Tx) error {
		return execute(ctx, tx, string(bytes))
	})
}

func (s *Store) applyPatches(ctx context.Context, db *sql.DB) error {
	filePaths, err := fs.Glob(migrationFS, s.getMigrationBasePath()+"patch/*.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read migration files")
	}
	sort.Strings(filePaths)

	applied := 0
	for _, filePath := range filePaths {
		version := strings.SplitN(filepath.Base(filePath), MigrateFileNameSplit, 2)[0]
		if version == "" || !strings.Contains(filepath.Base(filePath), MigrateFileNameSplit) {
			return errors.Errorf("invalid migration file name: %s", filePath)
		}

		var exists int
		row := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migration_history WHERE version = "+s.bindVar(1), version)
		if err := row.Scan(&exists); err != nil {
			return errors.Wrap(err, "failed to read migration history")
		}
		if exists > 0 {
			continue
		}

		bytes, err := migrationFS.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file: %s", filePath)
		}

		slog.Info("applying migration", slog.String("file", filePath))
		err = s.inTx(ctx, db, func(tx *sql.Tx) error {
			if err := execute(ctx, tx, string(bytes)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO migration_history (version, applied_ts) VALUES ("+s.bindVar(1)+", "+s.bindVar(2)+")",
				version, time.Now().Unix())
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", filePath)
		}
		applied++
	}

	if applied > 0 {
		slog.Info("migration completed", slog.Int("migrationsApplied", applied))
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.profile.Driver)
}

func (s *Store) bindVar(n int) string {
	if s.profile.Driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func execute(ctx context.Context, tx *sql.Tx, stmt string) error {
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to execute statement")
	}
	return nil
}
