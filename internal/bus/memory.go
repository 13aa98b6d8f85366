package bus

import (
	"sync"

	"github.com/jeremiafourie/cogniflight-edge/pkg/logging"
)

// MemoryStore is an in-process Store with synchronous, panic-isolated
// dispatch to subscribers. It never returns model.ErrStoreUnavailable.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]Record
	handlers map[string][]ChangeHandler // "" holds wildcard subscribers
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]Record),
		handlers: make(map[string][]ChangeHandler),
	}
}

// Get returns the latest record for key.
func (s *MemoryStore) Get(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Put stores rec and dispatches to subscribers of its key and to wildcard
// subscribers, synchronously, in subscription order.
func (s *MemoryStore) Put(rec Record) error {
	s.mu.Lock()
	s.records[rec.Key] = rec
	direct := append([]ChangeHandler(nil), s.handlers[rec.Key]...)
	wildcard := append([]ChangeHandler(nil), s.handlers[""]...)
	s.mu.Unlock()

	for _, h := range direct {
		s.safeInvoke(h, rec)
	}
	for _, h := range wildcard {
		s.safeInvoke(h, rec)
	}
	return nil
}

func (s *MemoryStore) safeInvoke(h ChangeHandler, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.WithField("panic", r).Warn("bus handler panicked")
		}
	}()
	h(rec)
}

// Subscribe registers handler for key ("" for all keys).
func (s *MemoryStore) Subscribe(key string, handler ChangeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[key] = append(s.handlers[key], handler)
}

// Close is a no-op for MemoryStore; it holds no external resources.
func (s *MemoryStore) Close() error { return nil }
