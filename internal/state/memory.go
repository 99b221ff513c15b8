package state

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process maps. It mirrors the Redis
// semantics exactly (newest-first lists, negative range indices) so the two
// backends are interchangeable behind the interface.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	lists  map[string][]string
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		lists:  make(map[string][]string),
	}
}

// Get returns the value for key, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// ListPush prepends value to the list at key.
func (s *MemoryStore) ListPush(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append([]string{value}, s.lists[key]...)
	return nil
}

// ListRange returns list elements from start through stop inclusive.
func (s *MemoryStore) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	n := int64(len(list))
	start, stop = normalizeRange(start, stop, n)
	if start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

// ListTrim discards list elements outside [start, stop].
func (s *MemoryStore) ListTrim(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	n := int64(len(list))
	start, stop = normalizeRange(start, stop, n)
	if start > stop || start >= n {
		delete(s.lists, key)
		return nil
	}
	s.lists[key] = list[start : stop+1]
	return nil
}

// TryClaim checks-and-sets the last-run timestamp under the store mutex,
// matching the atomicity of the Redis claim script.
func (s *MemoryStore) TryClaim(_ context.Context, key string, now time.Time, interval time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok := s.values[key]; ok {
		last, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && now.UnixMilli()-last < interval.Milliseconds() {
			return false, nil
		}
	}
	s.values[key] = strconv.FormatInt(now.UnixMilli(), 10)
	return true, nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error { return nil }

// normalizeRange resolves negative Redis-style indices and clamps to bounds.
func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
