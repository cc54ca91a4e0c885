// Package cache adds a read-through cache for the published creations feed in
// front of any storage.CreationStore.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/aisaas/backend/internal/app/domain/creation"
	"github.com/aisaas/backend/internal/app/storage"
)

// PublishedKey is the cache key holding the serialised published feed.
const PublishedKey = "creations:published"

// ErrMiss is returned by a KV when the key is absent.
var ErrMiss = errors.New("cache: miss")

// KV is the subset of a key/value server the cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisKV adapts a go-redis client to KV.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV parses a redis:// URL and returns a connected KV.
func NewRedisKV(ctx context.Context, url string) (*RedisKV, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisKV{client: client}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return data, err
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close releases the redis connection pool.
func (r *RedisKV) Close() error {
	return r.client.Close()
}

// Store wraps a CreationStore and caches ListPublishedCreations. Inserts of
// published creations invalidate the cached feed. Cache failures are logged
// and fall through to the underlying store.
type Store struct {
	storage.CreationStore

	kv       KV
	ttl      time.Duration
	log      *logrus.Entry
	onLookup func(hit bool)

	// mu orders cache writes against invalidations; gen counts invalidations.
	mu  sync.Mutex
	gen uint64
}

var _ storage.CreationStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for cache failures.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) { s.log = log }
}

// WithLookupObserver registers a callback invoked on every cache lookup.
func WithLookupObserver(fn func(hit bool)) Option {
	return func(s *Store) { s.onLookup = fn }
}

// New wraps next with a published-feed cache.
func New(next storage.CreationStore, kv KV, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		CreationStore: next,
		kv:            kv,
		ttl:           ttl,
		log:           logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) CreateCreation(ctx context.Context, c creation.Creation) (creation.Creation, error) {
	created, err := s.CreationStore.CreateCreation(ctx, c)
	if err != nil {
		return created, err
	}
	if created.Publish {
		s.mu.Lock()
		s.gen++
		if err := s.kv.Del(ctx, PublishedKey); err != nil {
			s.log.WithError(err).Warn("failed to invalidate published cache")
		}
		s.mu.Unlock()
	}
	return created, nil
}

func (s *Store) ListPublishedCreations(ctx context.Context) ([]creation.Creation, error) {
	data, err := s.kv.Get(ctx, PublishedKey)
	switch {
	case err == nil:
		var cached []creation.Creation
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			s.observe(true)
			return cached, nil
		}
		s.log.Warn("discarding undecodable published cache entry")
	case !errors.Is(err, ErrMiss):
		s.log.WithError(err).Warn("published cache lookup failed")
	}
	s.observe(false)

	return s.Warm(ctx)
}

// Warm loads the published feed from the underlying store and caches it. A
// feed read while a publishing insert invalidated the cache is returned but
// not cached. Replicas sharing the cache rely on the TTL for that case.
func (s *Store) Warm(ctx context.Context) ([]creation.Creation, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	list, err := s.CreationStore.ListPublishedCreations(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(list)
	if err != nil {
		return list, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return list, nil
	}
	if err := s.kv.Set(ctx, PublishedKey, data, s.ttl); err != nil {
		s.log.WithError(err).Warn("failed to populate published cache")
	}
	return list, nil
}

func (s *Store) observe(hit bool) {
	if s.onLookup != nil {
		s.onLookup(hit)
	}
}
