// Package bookmark persists the address of each view session.
package bookmark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/curator/internal/db"
)

// DefaultKeyPrefix namespaces bookmark keys.
const DefaultKeyPrefix = "curator:"

// store is the consumer interface for bookmark operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Store keeps the canonical query string of a session under
// <prefix>bookmark:<repo>:<session>. Each write refreshes the TTL.
type Store struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a bookmark store. An empty prefix selects DefaultKeyPrefix.
func New(s store, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{store: s, prefix: prefix, ttl: ttl}
}

// Save records the address of a session.
func (s *Store) Save(ctx context.Context, repo, sessionID, rawQuery string) error {
	key := s.key(repo, sessionID)
	if err := s.store.SetWithTTL(ctx, key, []byte(rawQuery), s.ttl); err != nil {
		return fmt.Errorf("bookmark SET %s: %w", key, err)
	}
	return nil
}

// Load returns the saved address. found is false when nothing was saved or
// the bookmark expired.
func (s *Store) Load(ctx context.Context, repo, sessionID string) (rawQuery string, found bool, err error) {
	key := s.key(repo, sessionID)
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("bookmark GET %s: %w", key, err)
	}
	return string(data), true, nil
}

// Delete removes the bookmark of a session.
func (s *Store) Delete(ctx context.Context, repo, sessionID string) error {
	key := s.key(repo, sessionID)
	if err := s.store.Del(ctx, key); err != nil {
		return fmt.Errorf("bookmark DEL %s: %w", key, err)
	}
	return nil
}

// Sessions lists the session ids with a bookmark in repo.
func (s *Store) Sessions(ctx context.Context, repo string) ([]string, error) {
	base := s.key(repo, "")
	keys, err := s.store.Scan(ctx, base+"*")
	if err != nil {
		return nil, fmt.Errorf("bookmark SCAN %s*: %w", base, err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, base))
	}
	return ids, nil
}

func (s *Store) key(repo, sessionID string) string {
	return s.prefix + "bookmark:" + repo + ":" + sessionID
}
