package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	json "github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"reputationkit/core"
)

// Driver names a supported database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection settings.
type Config struct {
	Driver          Driver        `json:"driver" env:"REPUTATION_STORAGE_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"REPUTATION_STORAGE_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"REPUTATION_STORAGE_SQL_MAX_OPEN"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"REPUTATION_STORAGE_SQL_MAX_IDLE"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"REPUTATION_STORAGE_SQL_CONN_MAX_LIFETIME"`
	// AutoMigrate creates the snapshot table on startup.
	AutoMigrate bool `json:"auto_migrate" env:"REPUTATION_STORAGE_SQL_AUTO_MIGRATE"`
}

// DefaultConfig returns pool defaults for driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// Store keeps one row per user. The snapshot itself is a JSON column;
// version, points_total and level are mirrored into columns so commits can
// compare-and-swap on version and reports can sort without decoding.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens a connection pool and optionally migrates the schema.
func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sql storage requires a dsn")
	}
	db, err := sqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	s := NewWithDB(db, cfg.Driver)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the snapshot table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS user_snapshots (
	user_id VARCHAR(191) PRIMARY KEY,
	referral_code VARCHAR(32) UNIQUE,
	version BIGINT NOT NULL,
	points_total BIGINT NOT NULL,
	level BIGINT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	data TEXT NOT NULL
)`
	if s.driver == DriverPostgres {
		ddl = `CREATE TABLE IF NOT EXISTS user_snapshots (
	user_id TEXT PRIMARY KEY,
	referral_code TEXT UNIQUE,
	version BIGINT NOT NULL,
	points_total BIGINT NOT NULL,
	level BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	data JSONB NOT NULL
)`
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate user_snapshots: %w", err)
	}
	return nil
}

type snapshotRow struct {
	Data    []byte `db:"data"`
	Version int64  `db:"version"`
}

func (r snapshotRow) decode() (core.Snapshot, error) {
	var snap core.Snapshot
	if err := json.Unmarshal(r.Data, &snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	snap.Version = uint64(r.Version)
	if snap.Badges == nil {
		snap.Badges = []core.EarnedBadge{}
	}
	return snap, nil
}

func nullableCode(code string) sql.NullString {
	code = core.NormalizeReferralCode(code)
	return sql.NullString{String: code, Valid: code != ""}
}

// isUniqueViolation recognises duplicate-key errors from both drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}

func (s *Store) Create(ctx context.Context, snap core.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	q := s.db.Rebind(`INSERT INTO user_snapshots (user_id, referral_code, version, points_total, level, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, q, string(snap.UserID), nullableCode(snap.ReferralCode), int64(snap.Version),
		snap.PointsTotal, snap.Level, snap.CreatedAt, snap.Updated, data)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrUserExists, snap.UserID)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, user core.UserID) (core.Snapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT data, version FROM user_snapshots WHERE user_id = ?`), string(user))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, user)
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load user: %w", err)
	}
	return row.decode()
}

// CommitDelta applies d with UPDATE ... WHERE version = expectedVersion;
// zero affected rows means another writer got there first.
func (s *Store) CommitDelta(ctx context.Context, user core.UserID, d core.Delta, expectedVersion uint64) (core.Snapshot, error) {
	cur, err := s.Load(ctx, user)
	if err != nil {
		return core.Snapshot{}, err
	}
	if cur.Version != expectedVersion {
		return core.Snapshot{}, fmt.Errorf("%w: %s at version %d, expected %d", core.ErrConflict, user, cur.Version, expectedVersion)
	}
	next := cur.WithDelta(d)
	data, err := json.Marshal(next)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	q := s.db.Rebind(`UPDATE user_snapshots SET data = ?, version = ?, points_total = ?, level = ?, updated_at = ? WHERE user_id = ? AND version = ?`)
	res, err := s.db.ExecContext(ctx, q, data, int64(next.Version), next.PointsTotal, next.Level, next.Updated,
		string(user), int64(expectedVersion))
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return core.Snapshot{}, fmt.Errorf("%w: %s modified concurrently", core.ErrConflict, user)
	}
	return next, nil
}

func (s *Store) FindByReferralCode(ctx context.Context, code string) (core.UserID, bool, error) {
	var id string
	err := s.db.GetContext(ctx, &id, s.db.Rebind(`SELECT user_id FROM user_snapshots WHERE referral_code = ?`), core.NormalizeReferralCode(code))
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup referral code: %w", err)
	}
	return core.UserID(id), true, nil
}

func (s *Store) All(ctx context.Context) ([]core.Snapshot, error) {
	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT data, version FROM user_snapshots`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]core.Snapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := r.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
