// Package runstate persists the per-date publication record that makes
// re-runs resume instead of reposting.
package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"newsbot/common"
	"newsbot/config"
	"newsbot/types"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load when no state exists for the date
var ErrNotFound = errors.New("run state not found")

// Store loads and saves RunState keyed by run date (YYYY-MM-DD)
type Store interface {
	Load(ctx context.Context, runDate string) (*types.RunState, error)
	Save(ctx context.Context, state *types.RunState) error
	// List returns stored run dates, oldest first
	List(ctx context.Context) ([]string, error)
}

// Pinger is implemented by stores backed by a connection or a directory
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks store when it supports it
func Ping(ctx context.Context, store Store) error {
	if p, ok := store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Open builds the backend selected by cfg.Backend
func Open(ctx context.Context, cfg config.StateConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "", "file":
		logger.Info("using file run state", "dir", cfg.Dir)
		return NewFileStore(cfg.Dir)
	case "memory":
		logger.Warn("using in-memory run state; resume will not survive a restart")
		return NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("using redis run state", "addr", cfg.Redis.Addr, "prefix", cfg.Prefix)
		return NewRedisStore(client, cfg.Prefix, cfg.TTL), nil
	case "s3":
		s3, err := common.NewS3(ctx, common.S3Config{
			Bucket:       cfg.S3.Bucket,
			Prefix:       cfg.S3.Prefix,
			Region:       cfg.S3.Region,
			Profile:      cfg.S3.Profile,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("using s3 run state", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
		return NewObjectStore(s3), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

func encode(state *types.RunState) ([]byte, error) {
	if state == nil || state.RunDate == "" {
		return nil, errors.New("run state without run date")
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode run state %s: %w", state.RunDate, err)
	}
	return data, nil
}

func decode(runDate string, data []byte) (*types.RunState, error) {
	var state types.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode run state %s: %w", runDate, err)
	}
	return &state, nil
}

func sortedDates(keys []string, trim func(string) (string, bool)) []string {
	dates := make([]string, 0, len(keys))
	for _, k := range keys {
		if d, ok := trim(k); ok {
			dates = append(dates, d)
		}
	}
	slices.Sort(dates)
	return dates
}

// RedisStore keeps each RunState under "<prefix>:runstate:<date>" with a TTL
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps a connected client
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(runDate string) string {
	return r.prefix + ":runstate:" + runDate
}

// Load implements Store
func (r *RedisStore) Load(ctx context.Context, runDate string) (*types.RunState, error) {
	data, err := r.client.Get(ctx, r.key(runDate)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run state %s: %w", runDate, err)
	}
	return decode(runDate, data)
}

// Save implements Store
func (r *RedisStore) Save(ctx context.Context, state *types.RunState) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(state.RunDate), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run state %s: %w", state.RunDate, err)
	}
	return nil
}

// List implements Store
func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	prefix := r.key("")
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list run states: %w", err)
	}
	return sortedDates(keys, func(k string) (string, bool) {
		return strings.CutPrefix(k, prefix)
	}), nil
}

// Ping checks the Redis connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// ObjectStore keeps each RunState as "runstate/<date>.json" in an object store
type ObjectStore struct {
	objects common.ObjectStore
}

const objectDir = "runstate/"

// NewObjectStore stores run state through an S3-style object store
func NewObjectStore(objects common.ObjectStore) *ObjectStore {
	return &ObjectStore{objects: objects}
}

// Load implements Store
func (o *ObjectStore) Load(ctx context.Context, runDate string) (*types.RunState, error) {
	data, err := o.objects.Get(ctx, objectDir+runDate+".json")
	if errors.Is(err, common.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run state %s: %w", runDate, err)
	}
	return decode(runDate, data)
}

// Save implements Store
func (o *ObjectStore) Save(ctx context.Context, state *types.RunState) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	return o.objects.Put(ctx, objectDir+state.RunDate+".json", data, "application/json")
}

// List implements Store
func (o *ObjectStore) List(ctx context.Context) ([]string, error) {
	keys, err := o.objects.List(ctx, objectDir)
	if err != nil {
		return nil, err
	}
	return sortedDates(keys, func(k string) (string, bool) {
		k, ok := strings.CutPrefix(k, objectDir)
		if !ok {
			return "", false
		}
		return strings.CutSuffix(k, ".json")
	}), nil
}
