package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/domain/collection"
	"github.com/osa030/19deck/internal/infra/cache"
)

// Store is a byte cache. Get returns cache.ErrMiss for absent keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedSource caches the collections fetched by another source.
// Cache failures never fail a fetch.
type CachedSource struct {
	source Source
	store  Store
	ttl    time.Duration
}

// NewCachedSource wraps source with a cache.
func NewCachedSource(source Source, store Store, ttl time.Duration) *CachedSource {
	return &CachedSource{source: source, store: store, ttl: ttl}
}

// Name returns the wrapped source name.
func (s *CachedSource) Name() string {
	return s.source.Name()
}

// Supports reports whether the wrapped source supports typ.
func (s *CachedSource) Supports(typ collection.Type) bool {
	return s.source.Supports(typ)
}

// Fetch returns the cached collection, or fetches and caches it.
func (s *CachedSource) Fetch(ctx context.Context, ref collection.Ref) (*collection.Collection, error) {
	key := cacheKey(s.source.Name(), ref)

	data, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		var c collection.Collection
		if err := json.Unmarshal(data, &c); err == nil {
			zlog.Debug().Msgf("cache hit: key=%s tracks=%d", key, len(c.Tracks))
			return &c, nil
		}
		zlog.Warn().Msgf("cache entry corrupted, refetching: key=%s", key)
	case errors.Is(err, cache.ErrMiss):
		zlog.Debug().Msgf("cache miss: key=%s", key)
	default:
		zlog.Warn().Msgf("cache read failed: key=%s error=%v", key, err)
	}

	c, err := s.source.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(c); err != nil {
		zlog.Warn().Msgf("failed to encode collection for cache: key=%s error=%v", key, err)
	} else if err := s.store.Set(ctx, key, data, s.ttl); err != nil {
		zlog.Warn().Msgf("cache write failed: key=%s error=%v", key, err)
	}

	return c, nil
}

func cacheKey(sourceName string, ref collection.Ref) string {
	return "collection:" + sourceName + ":" + ref.Key()
}
