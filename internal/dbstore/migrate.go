// Package dbstore implements the persistence binding (C7, spec §4.7) and
// the bit-exact relational schema of spec §6, over
// database/sql + github.com/jmoiron/sqlx + github.com/lib/pq, matching
// the Postgres-only persistence the original implementation used
// (diesel::PgConnection in original_source/src/db). Schema migrations
// are embedded and applied with github.com/pressly/goose/v3, enriched
// from the jordigilh-kubernaut example's use of the same library.
package dbstore

import (
	"embed"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"golang.org/x/xerrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration to db.
func Migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return xerrors.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return xerrors.Errorf("applying migrations: %w", err)
	}
	return nil
}
