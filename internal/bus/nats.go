package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jeremiafourie/cogniflight-edge/internal/model"
	"github.com/jeremiafourie/cogniflight-edge/pkg/logging"
)

// NATSConfig configures the NATS-backed Store, grounded on the PERCILA
// integration bridge's reconnect tuning.
type NATSConfig struct {
	URL           string
	ClientID      string
	ReconnectWait time.Duration
	MaxReconnects int
	SubjectPrefix string // e.g. "ffe."
}

// DefaultNATSConfig returns reconnect defaults: a 1s ReconnectWait (also the
// starting delay of Reconnect's exponential backoff, which caps at 30s) and
// unlimited automatic reconnect attempts.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		ClientID:      "ffe",
		ReconnectWait: 1 * time.Second,
		MaxReconnects: -1,
		SubjectPrefix: "ffe.",
	}
}

// NATSStore adapts the Store contract onto real NATS subjects, caching the
// latest record per key locally so Get never blocks on the network.
type NATSStore struct {
	mu       sync.RWMutex
	nc       *nats.Conn
	cfg      NATSConfig
	records  map[string]Record
	handlers map[string][]ChangeHandler
	subs     []*nats.Subscription

	backoff time.Duration
}

// NewNATSStore connects to NATS. The client's own automatic reconnects wait a
// fixed cfg.ReconnectWait between attempts; capped exponential backoff is
// provided by Reconnect.
func NewNATSStore(cfg NATSConfig) (*NATSStore, error) {
	s := &NATSStore{
		cfg:      cfg,
		records:  make(map[string]Record),
		handlers: make(map[string][]ChangeHandler),
		backoff:  cfg.ReconnectWait,
	}

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectHandler(func(*nats.Conn) {
			logging.Logger.Info("ffe NATS store reconnected")
			s.backoff = cfg.ReconnectWait
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Logger.WithError(err).Warn("ffe NATS store disconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	s.nc = nc
	return s, nil
}

// Get returns the most recently received record for key.
func (s *NATSStore) Get(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Put publishes rec to its NATS subject and updates the local cache.
func (s *NATSStore) Put(rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record for %s: %w", rec.Key, err)
	}
	if err := s.nc.Publish(s.subject(rec.Key), payload); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	s.records[rec.Key] = rec
	s.mu.Unlock()
	return nil
}

// Subscribe subscribes to the NATS subject for key (or all FFE subjects for
// key == "") and dispatches decoded records to handler.
func (s *NATSStore) Subscribe(key string, handler ChangeHandler) {
	subject := s.subject(key)
	if key == "" {
		subject = s.cfg.SubjectPrefix + ">"
	}

	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		var rec Record
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			logging.Logger.WithError(err).Warn("ffe NATS store received malformed record")
			return
		}
		s.mu.Lock()
		s.records[rec.Key] = rec
		s.mu.Unlock()
		handler(rec)
	})
	if err != nil {
		logging.Logger.WithError(err).WithField("subject", subject).Error("ffe NATS store subscribe failed")
		return
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

// Reconnect retries the NATS connection with capped exponential backoff
// (base ReconnectWait, cap 30s), used when the caller observes
// model.ErrStoreUnavailable outside the NATS client's own auto-reconnect
// (e.g. the very first Connect attempt failed).
func (s *NATSStore) Reconnect(ctx context.Context) error {
	const maxBackoff = 30 * time.Second

	for {
		nc, err := nats.Connect(s.cfg.URL, nats.Name(s.cfg.ClientID))
		if err == nil {
			s.mu.Lock()
			s.nc = nc
			s.mu.Unlock()
			s.backoff = s.cfg.ReconnectWait
			return nil
		}

		logging.Logger.WithError(err).WithField("backoff", s.backoff).Warn("ffe NATS store reconnect attempt failed")

		select {
		case <-time.After(s.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		s.backoff *= 2
		if s.backoff > maxBackoff {
			s.backoff = maxBackoff
		}
	}
}

// Close unsubscribes every subscription and closes the underlying connection.
func (s *NATSStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

func (s *NATSStore) subject(key string) string {
	return s.cfg.SubjectPrefix + key
}
