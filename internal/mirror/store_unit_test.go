package mirror

import (
	"context"
	"database/sql"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monstermuffin/technisync/internal/domain"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: db, logger: slog.Default()}, mock
}

func TestGetRecords(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"server", "zone", "name", "type", "ttl", "rdata", "last_operation", "created_at", "updated_at"}).
		AddRow("server1", "example.com", "www", "A", 300, []byte(`{"ipAddress":"1.2.3.4"}`), "ADD", time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT server, zone, name, type, ttl, rdata, last_operation, created_at, updated_at
		FROM mirror_records
		WHERE server = $1 AND zone = $2 AND last_operation = $3`)).
		WithArgs("server1", "example.com", "ADD").
		WillReturnRows(rows)

	got, err := store.GetRecords(context.Background(), "server1", "example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "www", got[0].Name)
	assert.Equal(t, domain.TypeA, got[0].Type)
	assert.Equal(t, "1.2.3.4", got[0].RData["ipAddress"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddOrUpdateRecord(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO mirror_records`)).
		WithArgs("server1", "example.com", "www", "A", 300, []byte(`{"ipAddress":"1.2.3.4"}`), "ADD").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.AddOrUpdateRecord(context.Background(), "server1", "example.com", domain.Record{
		Name: "www", Type: domain.TypeA, TTL: 300, RData: map[string]string{"ipAddress": "1.2.3.4"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetZoneOwnerNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT owner FROM zone_ownership WHERE zone = $1`)).
		WithArgs("example.com").
		WillReturnError(sql.ErrNoRows)

	owner, ok, err := store.GetZoneOwner(context.Background(), "example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, owner)
}

func TestCountRows(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM mirror_records`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.CountRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetZoneOwner(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO zone_ownership`)).
		WithArgs("0.0.10.in-addr.arpa", "server1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SetZoneOwner(context.Background(), "0.0.10.in-addr.arpa", "server1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
