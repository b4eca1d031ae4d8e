package sqlx_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	json "github.com/goccy/go-json"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	storage "reputationkit/adapters/sqlx"
	"reputationkit/core"
)

func newMockStore(t *testing.T, driver storage.Driver) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, string(driver)), driver)
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

var created = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func snapshotJSON(t *testing.T, s core.Snapshot) []byte {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return b
}

func TestSQLMock_Create(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	snap := core.NewSnapshot("u1", "abcd1234", created)
	mock.ExpectExec(`INSERT INTO user_snapshots .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)`).
		WithArgs("u1", "ABCD1234", int64(0), int64(0), int64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Create(context.Background(), snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Create_Duplicate(t *testing.T) {
	for _, tc := range []struct {
		driver storage.Driver
		err    error
	}{
		{storage.DriverPostgres, &pq.Error{Code: "23505"}},
		{storage.DriverMySQL, &mysql.MySQLError{Number: 1062}},
	} {
		t.Run(string(tc.driver), func(t *testing.T) {
			store, mock, cleanup := newMockStore(t, tc.driver)
			defer cleanup()

			mock.ExpectExec(`INSERT INTO user_snapshots`).WillReturnError(tc.err)
			err := store.Create(context.Background(), core.NewSnapshot("u1", "", created))
			require.ErrorIs(t, err, core.ErrUserExists)
		})
	}
}

func TestSQLMock_Load(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	snap := core.NewSnapshot("u1", "ABCD1234", created)
	snap.PointsTotal = 420
	mock.ExpectQuery(`SELECT data, version FROM user_snapshots WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow(snapshotJSON(t, snap), 7))

	got, err := store.Load(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(420), got.PointsTotal)
	require.Equal(t, uint64(7), got.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Load_NotFound(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	mock.ExpectQuery(`SELECT data, version FROM user_snapshots`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Load(context.Background(), "ghost")
	require.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestSQLMock_CommitDelta(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	snap := core.NewSnapshot("u1", "", created)
	d := core.NoopDelta(snap)
	d.PointsDelta, d.NewTotal, d.NewAvailable = 10, 10, 10

	mock.ExpectQuery(`SELECT data, version FROM user_snapshots`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow(snapshotJSON(t, snap), 0))
	mock.ExpectExec(`UPDATE user_snapshots SET .* WHERE user_id = \$6 AND version = \$7`).
		WithArgs(sqlmock.AnyArg(), int64(1), int64(10), int64(1), sqlmock.AnyArg(), "u1", int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	next, err := store.CommitDelta(context.Background(), "u1", d, 0)
	require.NoError(t, err)
	require.Equal(t, int64(10), next.PointsTotal)
	require.Equal(t, uint64(1), next.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_CommitDelta_Conflict(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	snap := core.NewSnapshot("u1", "", created)
	d := core.NoopDelta(snap)

	// stale before the update is attempted
	mock.ExpectQuery(`SELECT data, version FROM user_snapshots`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow(snapshotJSON(t, snap), 2))
	_, err := store.CommitDelta(context.Background(), "u1", d, 1)
	require.ErrorIs(t, err, core.ErrConflict)

	// lost the race between read and update
	mock.ExpectQuery(`SELECT data, version FROM user_snapshots`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow(snapshotJSON(t, snap), 1))
	mock.ExpectExec(`UPDATE user_snapshots`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = store.CommitDelta(context.Background(), "u1", d, 1)
	require.ErrorIs(t, err, core.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_FindByReferralCode(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverMySQL)
	defer cleanup()

	mock.ExpectQuery(`SELECT user_id FROM user_snapshots WHERE referral_code = \?`).
		WithArgs("ABCD1234").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectQuery(`SELECT user_id FROM user_snapshots`).
		WithArgs("NOPE0000").
		WillReturnError(sql.ErrNoRows)

	id, ok, err := store.FindByReferralCode(context.Background(), " abcd1234")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, core.UserID("u1"), id)

	_, ok, err = store.FindByReferralCode(context.Background(), "nope0000")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_All(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	a := core.NewSnapshot("a", "", created)
	b := core.NewSnapshot("b", "", created)
	mock.ExpectQuery(`SELECT data, version FROM user_snapshots`).
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).
			AddRow(snapshotJSON(t, a), 3).
			AddRow(snapshotJSON(t, b), 4))

	all, err := store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, uint64(4), all[1].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Migrate(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.DriverPostgres)
	defer cleanup()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS user_snapshots`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := storage.New(storage.DefaultConfig(storage.DriverPostgres))
	require.Error(t, err)
}
