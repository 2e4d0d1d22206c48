package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load when nothing has been saved under the key
var ErrNotFound = errors.New("workspace not found")

// DefaultWorkspaceKey is the key the workspace blob is persisted under
const DefaultWorkspaceKey = "mmm-data-store"

// RedisWorkspaceStore keeps the serialized workspace as a single Redis string.
// Entries never expire.
type RedisWorkspaceStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisWorkspaceStore creates a store writing to key. An empty key falls back
// to DefaultWorkspaceKey.
func NewRedisWorkspaceStore(client redis.Cmdable, key string) *RedisWorkspaceStore {
	if key == "" {
		key = DefaultWorkspaceKey
	}
	return &RedisWorkspaceStore{client: client, key: key}
}

// Key returns the Redis key in use
func (s *RedisWorkspaceStore) Key() string {
	return s.key
}

// Load returns the stored blob or ErrNotFound
func (s *RedisWorkspaceStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	return data, nil
}

// Save overwrites the stored blob
func (s *RedisWorkspaceStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save workspace: %w", err)
	}
	return nil
}

// Delete removes the stored blob. Deleting a missing key is not an error.
func (s *RedisWorkspaceStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	return nil
}

// InMemoryWorkspaceStore is the process-local store used when Redis is disabled
type InMemoryWorkspaceStore struct {
	mu   sync.RWMutex
	data []byte
}

// NewInMemoryWorkspaceStore creates an empty in-memory store
func NewInMemoryWorkspaceStore() *InMemoryWorkspaceStore {
	return &InMemoryWorkspaceStore{}
}

func (s *InMemoryWorkspaceStore) Load(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *InMemoryWorkspaceStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make([]byte, len(data))
	copy(s.data, data)
	return nil
}

func (s *InMemoryWorkspaceStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
