package dbstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/xerrors"

	"github.com/distr1/butido/internal/berrors"
)

// Store wraps the Postgres connection pool used by the persistence
// binding (C7). Serialization across concurrent writers is delegated to
// the driver's pool, per spec §5: "the DB connection is shared;
// serialization is delegated to the driver's pool."
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and verifies the connection with a ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, xerrors.Errorf("connecting to database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying *sqlx.DB, e.g. for Migrate.
func (s *Store) DB() *sqlx.DB { return s.db }

// EnsureSubmit inserts a Submit row if one with this uuid does not
// already exist, and returns the row either way (idempotent, matching
// the insert-then-select pattern of spec §4.7). exec is either *Store's
// own *sqlx.DB or a *sqlx.Tx, so the critical section on success (spec
// §4.2 step 1) can run every Ensure*/InsertJob call inside one
// transaction via Store.WithTx.
func (s *Store) EnsureSubmit(ctx context.Context, exec sqlx.ExtContext, submitUUID uuid.UUID, submitTime time.Time) (Submit, error) {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO submits (uuid, submit_time) VALUES ($1, $2) ON CONFLICT (uuid) DO NOTHING`,
		submitUUID, submitTime)
	if err != nil {
		return Submit{}, xerrors.Errorf("inserting submit: %w", err)
	}
	var row Submit
	if err := sqlx.GetContext(ctx, exec, &row, `SELECT id, uuid, submit_time FROM submits WHERE uuid = $1`, submitUUID); err != nil {
		return Submit{}, xerrors.Errorf("selecting submit: %w", err)
	}
	return row, nil
}

// EnsureEndpoint inserts an Endpoint row by name if absent, and returns
// the row either way.
func (s *Store) EnsureEndpoint(ctx context.Context, exec sqlx.ExtContext, name string) (Endpoint, error) {
	_, err := exec.ExecContext(ctx, `INSERT INTO endpoints (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return Endpoint{}, xerrors.Errorf("inserting endpoint: %w", err)
	}
	var row Endpoint
	if err := sqlx.GetContext(ctx, exec, &row, `SELECT id, name FROM endpoints WHERE name = $1`, name); err != nil {
		return Endpoint{}, xerrors.Errorf("selecting endpoint: %w", err)
	}
	return row, nil
}

// EnsurePackage inserts a Package row by (name, version) if absent, and
// returns the row either way.
func (s *Store) EnsurePackage(ctx context.Context, exec sqlx.ExtContext, name, version string) (Package, error) {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO packages (name, version) VALUES ($1, $2) ON CONFLICT (name, version) DO NOTHING`,
		name, version)
	if err != nil {
		return Package{}, xerrors.Errorf("inserting package: %w", err)
	}
	var row Package
	if err := sqlx.GetContext(ctx, exec, &row, `SELECT id, name, version FROM packages WHERE name = $1 AND version = $2`, name, version); err != nil {
		return Package{}, xerrors.Errorf("selecting package: %w", err)
	}
	return row, nil
}

// EnsureImage inserts an Image row by name if absent, and returns the row
// either way.
func (s *Store) EnsureImage(ctx context.Context, exec sqlx.ExtContext, name string) (Image, error) {
	_, err := exec.ExecContext(ctx, `INSERT INTO images (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return Image{}, xerrors.Errorf("inserting image: %w", err)
	}
	var row Image
	if err := sqlx.GetContext(ctx, exec, &row, `SELECT id, name FROM images WHERE name = $1`, name); err != nil {
		return Image{}, xerrors.Errorf("selecting image: %w", err)
	}
	return row, nil
}

// EnsureEnvVar inserts an EnvVar row by (name, value) if absent, and
// returns the row either way.
func (s *Store) EnsureEnvVar(ctx context.Context, exec sqlx.ExtContext, name, value string) (EnvVar, error) {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO envvars (name, value) VALUES ($1, $2) ON CONFLICT (name, value) DO NOTHING`,
		name, value)
	if err != nil {
		return EnvVar{}, xerrors.Errorf("inserting envvar: %w", err)
	}
	var row EnvVar
	if err := sqlx.GetContext(ctx, exec, &row, `SELECT id, name, value FROM envvars WHERE name = $1 AND value = $2`, name, value); err != nil {
		return EnvVar{}, xerrors.Errorf("selecting envvar: %w", err)
	}
	return row, nil
}

// EnsureArtifact inserts an Artifact row by path if absent, and returns
// the row either way.
func (s *Store) EnsureArtifact(ctx context.Context, exec sqlx.ExtContext, path string) (Artifact, error) {
	_, err := exec.ExecContext(ctx, `INSERT INTO artifacts (path) VALUES ($1) ON CONFLICT (path) DO NOTHING`, path)
	if err != nil {
		return Artifact{}, xerrors.Errorf("inserting artifact: %w", err)
	}
	var row Artifact
	if err := sqlx.GetContext(ctx, exec, &row, `SELECT id, path FROM artifacts WHERE path = $1`, path); err != nil {
		return Artifact{}, xerrors.Errorf("selecting artifact: %w", err)
	}
	return row, nil
}

// InsertJob performs the literal persistence binding of spec §4.7: an
// `INSERT ... ON CONFLICT (uuid) DO NOTHING` followed by a
// `SELECT ... WHERE uuid = ?`, making the call idempotent under retry
// within the same submit. Ported directly from original_source's
// Job::create (diesel insert_into(...).on_conflict_do_nothing(),
// followed by dsl::jobs.filter(uuid.eq(...)).first(...)).
func (s *Store) InsertJob(ctx context.Context, exec sqlx.ExtContext, rec JobRecord) (JobRecord, error) {
	_, err := sqlx.NamedExecContext(ctx, exec, `
		INSERT INTO jobs (submit_id, endpoint_id, package_id, image_id, container_hash, script_text, log_text, uuid)
		VALUES (:submit_id, :endpoint_id, :package_id, :image_id, :container_hash, :script_text, :log_text, :uuid)
		ON CONFLICT (uuid) DO NOTHING`, rec)
	if err != nil {
		return JobRecord{}, &berrors.DbWriteFailed{JobUUID: rec.UUID, Err: err}
	}

	var row JobRecord
	q, args, err := sqlx.In(`SELECT id, submit_id, endpoint_id, package_id, image_id, container_hash, script_text, log_text, uuid
		FROM jobs WHERE uuid = ?`, rec.UUID)
	if err != nil {
		return JobRecord{}, &berrors.DbWriteFailed{JobUUID: rec.UUID, Err: err}
	}
	q = sqlx.Rebind(sqlx.BindType("postgres"), q)
	if err := sqlx.GetContext(ctx, exec, &row, q, args...); err != nil {
		return JobRecord{}, &berrors.DbWriteFailed{JobUUID: rec.UUID, Err: err}
	}
	return row, nil
}

// LinkJobEnv records that jobID's container was run with envvarID set,
// populating the jobs/envvars many-to-many join table.
func (s *Store) LinkJobEnv(ctx context.Context, exec sqlx.ExecerContext, jobID, envvarID int64) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO job_envs (job_id, envvar_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, jobID, envvarID)
	if err != nil {
		return xerrors.Errorf("linking job %d to envvar %d: %w", jobID, envvarID, err)
	}
	return nil
}

// ListSubmits returns every recorded submit, newest first (backs `butido
// db submits`).
func (s *Store) ListSubmits(ctx context.Context) ([]Submit, error) {
	var rows []Submit
	err := s.db.SelectContext(ctx, &rows, `SELECT id, uuid, submit_time FROM submits ORDER BY submit_time DESC`)
	return rows, err
}

// ListArtifacts returns every recorded artifact path (backs `butido db
// artifacts`).
func (s *Store) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	var rows []Artifact
	err := s.db.SelectContext(ctx, &rows, `SELECT id, path FROM artifacts ORDER BY path`)
	return rows, err
}

// ListEnvVars returns every recorded environment variable (backs `butido
// db envvars`).
func (s *Store) ListEnvVars(ctx context.Context) ([]EnvVar, error) {
	var rows []EnvVar
	err := s.db.SelectContext(ctx, &rows, `SELECT id, name, value FROM envvars ORDER BY name, value`)
	return rows, err
}

// ListImages returns every recorded image name (backs `butido db
// images`).
func (s *Store) ListImages(ctx context.Context) ([]Image, error) {
	var rows []Image
	err := s.db.SelectContext(ctx, &rows, `SELECT id, name FROM images ORDER BY name`)
	return rows, err
}

// ListJobs returns every recorded job, newest-inserted first (backs
// `butido db jobs`).
func (s *Store) ListJobs(ctx context.Context) ([]JobRecord, error) {
	var rows []JobRecord
	err := s.db.SelectContext(ctx, &rows, `SELECT id, submit_id, endpoint_id, package_id, image_id, container_hash, script_text, log_text, uuid
		FROM jobs ORDER BY id DESC`)
	return rows, err
}

// GetJob looks up one job by its uuid (backs `butido db job -uuid U`).
func (s *Store) GetJob(ctx context.Context, jobUUID uuid.UUID) (JobRecord, error) {
	var row JobRecord
	err := s.db.GetContext(ctx, &row, `SELECT id, submit_id, endpoint_id, package_id, image_id, container_hash, script_text, log_text, uuid
		FROM jobs WHERE uuid = $1`, jobUUID)
	return row, err
}

// WithTx runs fn inside a new transaction, committing on success and
// rolling back on any error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return xerrors.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
