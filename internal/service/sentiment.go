package service

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rimkus-dev/sentiment/internal/config"
	"github.com/rimkus-dev/sentiment/internal/engine"
	"github.com/rimkus-dev/sentiment/internal/sentiment"
)

// SessionObserver receives session lifecycle events and session open/close
// counts.
type SessionObserver interface {
	sentiment.Observer
	SessionOpened()
	SessionClosed()
}

// Sentiment owns the server-wide sentiment session and opens per-client ones
// with the same model.
type Sentiment struct {
	providers *engine.Registry
	observer  SessionObserver
	logger    *slog.Logger

	mu      sync.RWMutex
	cfg     config.SentimentConfig
	session *sentiment.Session

	subMu       sync.Mutex
	subscribers map[chan sentiment.State]struct{}
}

// subscriberBuffer is how many states a slow subscriber may lag behind
// before updates to it are dropped.
const subscriberBuffer = 16

// NewSentiment creates the service and its shared session. The session
// starts loading right away when auto_init is enabled.
func NewSentiment(providers *engine.Registry, cfg config.SentimentConfig, observer SessionObserver, logger *slog.Logger) (*Sentiment, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sentiment{
		providers:   providers,
		observer:    observer,
		logger:      logger,
		subscribers: make(map[chan sentiment.State]struct{}),
	}

	session, err := s.newShared(cfg)
	if err != nil {
		return nil, err
	}

	s.cfg = cfg
	s.session = session
	return s, nil
}

// Session returns the shared session.
func (s *Sentiment) Session() *sentiment.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session
}

// Open creates a session with the configured model. Later options override
// the defaults. The caller hands the session back to Release when done.
func (s *Sentiment) Open(opts ...sentiment.Option) (*sentiment.Session, error) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	return s.newSession(cfg, opts...)
}

// Release disposes a session returned by Open.
func (s *Sentiment) Release(session *sentiment.Session) {
	session.Dispose()
	if s.observer != nil {
		s.observer.SessionClosed()
	}
}

// Reconfigure applies a new sentiment config. When the model, dtype or
// provider changes the shared session is replaced and the old one disposed.
func (s *Sentiment) Reconfigure(cfg config.SentimentConfig) error {
	s.mu.RLock()
	same := s.cfg.SameModel(cfg)
	s.mu.RUnlock()

	if same {
		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()
		return nil
	}

	session, err := s.newShared(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.session
	s.cfg = cfg
	s.session = session
	s.mu.Unlock()

	s.logger.Info("Sentiment session replaced", "model", cfg.Model, "dtype", cfg.DType, "provider", cfg.Provider)
	s.Release(old)
	s.publish(session.State())

	return nil
}

// Subscribe returns a channel receiving the shared session state after every
// change, and a function that ends the subscription.
func (s *Sentiment) Subscribe() (<-chan sentiment.State, func()) {
	ch := make(chan sentiment.State, subscriberBuffer)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Sentiment) publish(state sentiment.State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- state:
		default:
			s.logger.Debug("Dropping state update for slow subscriber")
		}
	}
}

// newShared creates a session whose changes are published to subscribers
// while it is the shared one.
func (s *Sentiment) newShared(cfg config.SentimentConfig) (*sentiment.Session, error) {
	var self atomic.Pointer[sentiment.Session]
	onChange := func() {
		session := self.Load()
		if session == nil || session != s.Session() {
			return
		}
		s.publish(session.State())
	}

	session, err := s.newSession(cfg,
		sentiment.WithAutoInit(cfg.AutoInitEnabled()),
		sentiment.WithOnChange(onChange),
	)
	if err != nil {
		return nil, err
	}
	self.Store(session)

	return session, nil
}

// Close disposes the shared session.
func (s *Sentiment) Close() {
	s.mu.RLock()
	session := s.session
	s.mu.RUnlock()

	s.Release(session)
}

func (s *Sentiment) newSession(cfg config.SentimentConfig, opts ...sentiment.Option) (*sentiment.Session, error) {
	provider, err := s.providers.Get(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("sentiment provider: %w", err)
	}

	dtype := sentiment.DefaultDType
	if cfg.DType != "" {
		dtype, err = engine.ParseDType(cfg.DType)
		if err != nil {
			return nil, err
		}
	}

	base := []sentiment.Option{
		sentiment.WithModel(cfg.Model),
		sentiment.WithDType(dtype),
		sentiment.WithLogger(s.logger),
	}
	if s.observer != nil {
		base = append(base, sentiment.WithObserver(s.observer))
	}

	session := sentiment.New(provider, append(base, opts...)...)
	if s.observer != nil {
		s.observer.SessionOpened()
	}

	return session, nil
}
