package auditlog

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/cytoguard/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	insertQ = `(?s)^INSERT\s+INTO\s+audit_log\s*\(id,\s*ts,\s*action,\s*session_id,\s*details\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*$`
	selectQ = `(?s)^SELECT\s+id,\s*ts,\s*action,\s*session_id,\s*details\s+FROM\s+audit_log\s+WHERE\s+session_id\s*=\s*\$1\s+ORDER\s+BY\s+ts,\s*id\s*$`
)

var _ audit.Sink = (*PostgresRepository)(nil)
var _ Repository = (*PostgresRepository)(nil)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestAppend_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ts := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(insertQ).
		WithArgs("e-1", ts, audit.ActionFileSaved, "s-1", []byte(`{"encrypted":true,"size":2048}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), audit.Entry{
		ID:        "e-1",
		Timestamp: ts,
		Action:    audit.ActionFileSaved,
		SessionID: "s-1",
		Details:   map[string]any{"size": 2048, "encrypted": true},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_NilDetailsStoredAsEmptyObject(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).
		WithArgs("e-2", sqlmock.AnyArg(), audit.ActionSessionCreated, "", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), audit.Entry{ID: "e-2", Timestamp: time.Now(), Action: audit.ActionSessionCreated})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).WillReturnError(errors.New("db down"))

	err := repo.Append(context.Background(), audit.Entry{ID: "e-3", Action: audit.ActionFileDeleted})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestAppend_UnencodableDetails(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	err := repo.Append(context.Background(), audit.Entry{ID: "e-4", Details: map[string]any{"ch": make(chan int)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode details")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBySession(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	t1 := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	rows := sqlmock.NewRows([]string{"id", "ts", "action", "session_id", "details"}).
		AddRow("e-1", t1, audit.ActionFileSaved, "s-1", []byte(`{"size":10}`)).
		AddRow("e-2", t2, audit.ActionFileDeleted, "s-1", nil)
	mock.ExpectQuery(selectQ).WithArgs("s-1").WillReturnRows(rows)

	got, err := repo.ListBySession(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, audit.ActionFileSaved, got[0].Action)
	assert.Equal(t, float64(10), got[0].Details["size"])
	assert.Equal(t, t2, got[1].Timestamp)
	assert.Nil(t, got[1].Details)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBySession_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQ).WithArgs("s-1").WillReturnError(errors.New("boom"))

	_, err := repo.ListBySession(context.Background(), "s-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

func TestListBySession_BadDetails(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "ts", "action", "session_id", "details"}).
		AddRow("e-1", time.Now(), audit.ActionFileSaved, "s-1", []byte(`{not json`))
	mock.ExpectQuery(selectQ).WithArgs("s-1").WillReturnRows(rows)

	_, err := repo.ListBySession(context.Background(), "s-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode details")
}

func TestListBySession_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQ).WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ts", "action", "session_id", "details"}))

	got, err := repo.ListBySession(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}
