package download

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"customcolors/internal/domain"
)

// TokenStore holds issued tokens. Implementations must be safe for
// concurrent use.
type TokenStore interface {
	Put(ctx context.Context, t domain.DownloadToken) error
	Get(ctx context.Context, token string) (domain.DownloadToken, bool, error)
	Delete(ctx context.Context, token string) error
}

// CacheStore is an in-process TokenStore. Entries are evicted after the purge
// horizon, which should exceed the token window so expired tokens can be
// told apart from unknown ones for a while.
type CacheStore struct {
	c *cache.Cache
}

// NewCacheStore returns a store that forgets entries after horizon.
func NewCacheStore(horizon time.Duration) *CacheStore {
	cleanup := horizon / 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &CacheStore{c: cache.New(horizon, cleanup)}
}

func (s *CacheStore) Put(_ context.Context, t domain.DownloadToken) error {
	s.c.SetDefault(t.Token, t)
	return nil
}

func (s *CacheStore) Get(_ context.Context, token string) (domain.DownloadToken, bool, error) {
	v, ok := s.c.Get(token)
	if !ok {
		return domain.DownloadToken{}, false, nil
	}
	t, ok := v.(domain.DownloadToken)
	return t, ok, nil
}

func (s *CacheStore) Delete(_ context.Context, token string) error {
	s.c.Delete(token)
	return nil
}

// Len reports the number of live entries, tombstones included.
func (s *CacheStore) Len() int { return s.c.ItemCount() }

// Flush drops everything; called at shutdown.
func (s *CacheStore) Flush() { s.c.Flush() }
