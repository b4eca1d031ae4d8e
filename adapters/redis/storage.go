package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"reputationkit/core"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"REPUTATION_STORAGE_REDIS_ADDR"`
	Password     string        `json:"password,omitempty" env:"REPUTATION_STORAGE_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"REPUTATION_STORAGE_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"REPUTATION_STORAGE_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"REPUTATION_STORAGE_REDIS_MIN_IDLE"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"REPUTATION_STORAGE_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"REPUTATION_STORAGE_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"REPUTATION_STORAGE_REDIS_WRITE_TIMEOUT"`
	// KeyPrefix namespaces every key the store touches.
	KeyPrefix string `json:"key_prefix" env:"REPUTATION_STORAGE_REDIS_KEY_PREFIX"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "reputation",
	}
}

// Store keeps one JSON snapshot per user and commits deltas with
// WATCH/MULTI, so a snapshot changed between read and write aborts the
// transaction with core.ErrConflict.
// Data structure:
// - {prefix}:user:{user_id} -> JSON snapshot
// - {prefix}:users -> set of user ids
// - {prefix}:referral_codes -> hash code -> user id
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, prefix: prefixOrDefault(config.KeyPrefix)}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefixOrDefault(prefix)}
}

func prefixOrDefault(p string) string {
	if p == "" {
		return "reputation"
	}
	return p
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) userKey(userID core.UserID) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}

func (s *Store) usersKey() string { return s.prefix + ":users" }

func (s *Store) codesKey() string { return s.prefix + ":referral_codes" }

// createScript inserts a snapshot only if the user and its referral code are
// both unused, registering the code and the id in one step.
var createScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 1
	end
	if ARGV[2] ~= '' and redis.call('HEXISTS', KEYS[3], ARGV[2]) == 1 then
		return 2
	end
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('SADD', KEYS[2], ARGV[3])
	if ARGV[2] ~= '' then
		redis.call('HSET', KEYS[3], ARGV[2], ARGV[3])
	end
	return 0
`)

// Create stores a new snapshot.
func (s *Store) Create(ctx context.Context, snap core.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	code := core.NormalizeReferralCode(snap.ReferralCode)
	keys := []string{s.userKey(snap.UserID), s.usersKey(), s.codesKey()}
	res, err := createScript.Run(ctx, s.client, keys, data, code, string(snap.UserID)).Int()
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	switch res {
	case 1:
		return fmt.Errorf("%w: %s", core.ErrUserExists, snap.UserID)
	case 2:
		return fmt.Errorf("%w: referral code %s already taken", core.ErrUserExists, code)
	}
	return nil
}

// Load reads the user's snapshot.
func (s *Store) Load(ctx context.Context, userID core.UserID) (core.Snapshot, error) {
	data, err := s.client.Get(ctx, s.userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Snapshot{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("failed to load user: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (core.Snapshot, error) {
	var snap core.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Badges == nil {
		snap.Badges = []core.EarnedBadge{}
	}
	return snap, nil
}

// CommitDelta applies d if the stored version still equals expectedVersion.
func (s *Store) CommitDelta(ctx context.Context, userID core.UserID, d core.Delta, expectedVersion uint64) (core.Snapshot, error) {
	key := s.userKey(userID)
	var next core.Snapshot
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", core.ErrUserNotFound, userID)
		}
		if err != nil {
			return err
		}
		cur, err := decode(data)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return fmt.Errorf("%w: %s at version %d, expected %d", core.ErrConflict, userID, cur.Version, expectedVersion)
		}
		next = cur.WithDelta(d)
		out, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return core.Snapshot{}, fmt.Errorf("%w: %s modified concurrently", core.ErrConflict, userID)
	}
	if err != nil {
		return core.Snapshot{}, err
	}
	return next, nil
}

// FindByReferralCode resolves a referral code through the code index.
func (s *Store) FindByReferralCode(ctx context.Context, code string) (core.UserID, bool, error) {
	id, err := s.client.HGet(ctx, s.codesKey(), core.NormalizeReferralCode(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up referral code: %w", err)
	}
	return core.UserID(id), true, nil
}

// All loads every registered snapshot.
func (s *Store) All(ctx context.Context) ([]core.Snapshot, error) {
	ids, err := s.client.SMembers(ctx, s.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.userKey(core.UserID(id))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	out := make([]core.Snapshot, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // removed between SMEMBERS and MGET
		}
		snap, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
