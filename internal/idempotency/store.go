package idempotency

import (
	"container/list"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

var (
	// ErrInProgress means another request holding the same key has not finished.
	ErrInProgress = errors.New("idempotency: request with this key is in progress")
	// ErrKeyReused means the key was first used with a different request body.
	ErrKeyReused = errors.New("idempotency: key reused with a different request")
)

// Response is a stored 2xx response replayed for repeated keys.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// Store tracks keys through reserve, then complete or release.
type Store interface {
	// Reserve claims key for a request with the given fingerprint. It returns
	// the stored response when the key already completed with the same
	// fingerprint, and (nil, nil) when the caller now owns the key.
	Reserve(ctx context.Context, key, fingerprint string) (*Response, error)
	// Complete stores the response for a reserved key.
	Complete(ctx context.Context, key string, resp *Response) error
	// Release drops a reservation so the key can be retried.
	Release(ctx context.Context, key string) error
}

type entry struct {
	key         string
	fingerprint string
	response    *Response // nil while the request is in flight
	expires     time.Time
	element     *list.Element
}

// MemoryStore is a bounded in-memory Store with LRU eviction.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*entry
	lru        *list.List
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	stopOnce    sync.Once
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewMemoryStore creates a store holding at most maxEntries keys for ttl each.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &MemoryStore{
		entries:     make(map[string]*entry),
		lru:         list.New(),
		maxEntries:  maxEntries,
		ttl:         ttl,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go s.cleanup(cleanupInterval(ttl))
	return s
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < 5*time.Minute {
		return ttl
	}
	return 5 * time.Minute
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string) (*Response, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		s.lru.MoveToFront(e.element)
		switch {
		case e.fingerprint != fingerprint:
			return nil, ErrKeyReused
		case e.response == nil:
			return nil, ErrInProgress
		default:
			return e.response, nil
		}
	} else if ok {
		s.removeLocked(e)
	}

	if len(s.entries) >= s.maxEntries {
		s.evictLocked()
	}
	e := &entry{key: key, fingerprint: fingerprint, expires: now.Add(s.ttl)}
	e.element = s.lru.PushFront(e)
	s.entries[key] = e
	return nil, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key string, resp *Response) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		// Evicted while in flight; the response is simply not replayable.
		return nil
	}
	resp.StoredAt = now
	e.response = resp
	e.expires = now.Add(s.ttl)
	s.lru.MoveToFront(e.element)
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.response == nil {
		s.removeLocked(e)
	}
	return nil
}

// Len reports the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictLocked drops the least recently used completed entry, falling back to
// the oldest entry of any kind.
func (s *MemoryStore) evictLocked() {
	for el := s.lru.Back(); el != nil; el = el.Prev() {
		if e := el.Value.(*entry); e.response != nil {
			s.removeLocked(e)
			return
		}
	}
	if el := s.lru.Back(); el != nil {
		s.removeLocked(el.Value.(*entry))
	}
}

func (s *MemoryStore) removeLocked(e *entry) {
	s.lru.Remove(e.element)
	delete(s.entries, e.key)
}

func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.purgeExpired()
		}
	}
}

func (s *MemoryStore) purgeExpired() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if !now.Before(e.expires) {
			s.removeLocked(e)
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
	})
	return nil
}
