package dbstore

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: sqlx.NewDb(db, "postgres")}, mock
}

// TestInsertJobIdempotent exercises property 3: calling the persistence
// binding twice with the same job uuid performs an insert (that is a
// no-op the second time thanks to ON CONFLICT DO NOTHING) followed by a
// select, both times, and never a second distinct row.
func TestInsertJobIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	jobUUID := uuid.New()
	rec := JobRecord{
		SubmitID: 1, EndpointID: 1, PackageID: 1, ImageID: 1,
		ContainerHash: "sha256:abc", ScriptText: "#!/bin/sh\n", LogText: "ok\n",
		UUID: jobUUID,
	}

	insertRe := regexp.QuoteMeta(`INSERT INTO jobs`)
	selectRe := regexp.QuoteMeta(`SELECT id, submit_id, endpoint_id, package_id, image_id, container_hash, script_text, log_text, uuid`)

	rows := sqlmock.NewRows([]string{"id", "submit_id", "endpoint_id", "package_id", "image_id", "container_hash", "script_text", "log_text", "uuid"}).
		AddRow(1, 1, 1, 1, 1, "sha256:abc", "#!/bin/sh\n", "ok\n", jobUUID)

	mock.ExpectExec(insertRe).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(selectRe).WillReturnRows(rows)

	mock.ExpectExec(insertRe).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectRe).WillReturnRows(rows)

	ctx := context.Background()
	first, err := store.InsertJob(ctx, store.db, rec)
	if err != nil {
		t.Fatalf("first InsertJob: %v", err)
	}
	second, err := store.InsertJob(ctx, store.db, rec)
	if err != nil {
		t.Fatalf("second InsertJob: %v", err)
	}
	if first.ID != second.ID || first.UUID != second.UUID {
		t.Errorf("expected identical row from both calls, got %+v and %+v", first, second)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
