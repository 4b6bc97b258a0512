package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/miradorstack/mirador-remedy/internal/cache"
	"github.com/miradorstack/mirador-remedy/internal/models"
)

// CacheStore keeps records as a msgpack blob under one key of a cache.Provider.
type CacheStore struct {
	provider cache.Provider
	key      string
	ttl      time.Duration
}

// NewCacheStore returns a store writing to key. A zero ttl never expires.
func NewCacheStore(provider cache.Provider, key string, ttl time.Duration) *CacheStore {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &CacheStore{provider: provider, key: key, ttl: ttl}
}

// Load decodes the stored blob. A missing key yields no records.
func (s *CacheStore) Load(ctx context.Context) ([]models.ActionRecord, error) {
	data, err := s.provider.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	var records []models.ActionRecord
	if err := msgpack.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return records, nil
}

// Save encodes and stores records.
func (s *CacheStore) Save(ctx context.Context, records []models.ActionRecord) error {
	data, err := msgpack.Marshal(records)
	if err != nil {
		return err
	}
	return s.provider.Set(ctx, s.key, data, s.ttl)
}
