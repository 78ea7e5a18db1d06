package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"questline/core"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"ADDR"`
	Password     string        `json:"password,omitempty" env:"PASSWORD"`
	DB           int           `json:"db" env:"DB"`
	PoolSize     int           `json:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`

	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string `json:"key_prefix" env:"KEY_PREFIX"`
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
		KeyPrefix:    "questline",
	}
}

// Store keeps learner profiles in Redis.
// Data structure:
// - {prefix}:profile:{user_id} -> hash with xp, level, coins, streak, updated, version
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a new Redis-backed profile store with the provided configuration
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

	return &Store{client: client, prefix: config.KeyPrefix}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) profileKey(userID core.UserID) string {
	if s.prefix == "" {
		return fmt.Sprintf("profile:%s", userID)
	}
	return fmt.Sprintf("%s:profile:%s", s.prefix, userID)
}

// saveProfileScript writes all profile fields in one step and bumps the version.
var saveProfileScript = redis.NewScript(`
	local key = KEYS[1]
	redis.call('HSET', key,
		'xp', ARGV[1],
		'level', ARGV[2],
		'coins', ARGV[3],
		'streak', ARGV[4],
		'updated', ARGV[5])
	return redis.call('HINCRBY', key, 'version', 1)
`)

// SaveProfile atomically replaces the stored profile snapshot.
func (s *Store) SaveProfile(ctx context.Context, profile core.Profile) error {
	if _, err := core.NormalizeUserID(profile.UserID); err != nil {
		return err
	}
	updated := profile.Updated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	key := s.profileKey(profile.UserID)
	_, err := saveProfileScript.Run(ctx, s.client, []string{key},
		profile.XP, profile.Level, profile.Coins, profile.Streak, updated.Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// GetProfile loads a profile, returning core.ErrProfileNotFound for unknown users.
func (s *Store) GetProfile(ctx context.Context, userID core.UserID) (core.Profile, error) {
	fields, err := s.client.HGetAll(ctx, s.profileKey(userID)).Result()
	if err != nil {
		return core.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(fields) == 0 {
		return core.Profile{}, core.ErrProfileNotFound
	}
	return parseProfile(userID, fields)
}

// Version returns how many times the profile has been written.
func (s *Store) Version(ctx context.Context, userID core.UserID) (int64, error) {
	v, err := s.client.HGet(ctx, s.profileKey(userID), "version").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Delete removes a stored profile.
func (s *Store) Delete(ctx context.Context, userID core.UserID) error {
	return s.client.Del(ctx, s.profileKey(userID)).Err()
}

func parseProfile(userID core.UserID, fields map[string]string) (core.Profile, error) {
	p := core.Profile{UserID: userID}
	ints := []struct {
		name string
		dst  *int64
	}{
		{"xp", &p.XP},
		{"level", &p.Level},
		{"coins", &p.Coins},
		{"streak", &p.Streak},
	}
	for _, f := range ints {
		raw, ok := fields[f.name]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return core.Profile{}, fmt.Errorf("corrupt profile field %s for %s: %w", f.name, userID, err)
		}
		*f.dst = v
	}
	if raw, ok := fields["updated"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			p.Updated = ts
		}
	}
	return p, nil
}
