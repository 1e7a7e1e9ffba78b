package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis configuration
type Config struct {
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	MinIdleConn int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// Options builds go-redis client options from the config
func (cfg Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConn,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// NewRedisClient creates a new Redis client and checks the connection
func NewRedisClient(cfg Config) (*redis.Client, error) {
	client := redis.NewClient(cfg.Options())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Close gracefully closes the Redis client
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// GetClientStats returns Redis client statistics
func GetClientStats(client *redis.Client) map[string]interface{} {
	stats := client.PoolStats()
	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}

// Store is a JSON key-value cache on top of Redis. All keys are namespaced
// with the configured prefix.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore creates a Store. client may be nil, in which case every read is
// a miss and every write is dropped.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Key joins parts into a namespaced key
func (s *Store) Key(parts ...string) string {
	key := s.prefix
	for _, p := range parts {
		if key != "" {
			key += ":"
		}
		key += p
	}
	return key
}

// GetJSON decodes the value at key into dest. It reports false on a miss.
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if s.client == nil {
		return false, nil
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value at key as JSON with the given expiry
func (s *Store) SetJSON(ctx context.Context, key string, value interface{}, expiry time.Duration) error {
	if s.client == nil {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return s.client.Set(ctx, key, raw, expiry).Err()
}

// AddJSON stores value at key only if the key does not exist yet. It
// reports whether the value was written.
func (s *Store) AddJSON(ctx context.Context, key string, value interface{}, expiry time.Duration) (bool, error) {
	if s.client == nil {
		return true, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache encode %s: %w", key, err)
	}
	return s.client.SetNX(ctx, key, raw, expiry).Result()
}

// Claim sets key to an empty JSON object only if it does not exist yet, so
// a claimed key decodes as the zero value until it is overwritten.
func (s *Store) Claim(ctx context.Context, key string, expiry time.Duration) (bool, error) {
	return s.AddJSON(ctx, key, struct{}{}, expiry)
}

// Delete removes keys
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if s.client == nil || len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Ping checks that Redis answers
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("redis not configured")
	}
	return s.client.Ping(ctx).Err()
}
