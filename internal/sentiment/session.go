// Package sentiment wraps a lazily loaded text classification engine in a
// session with observable loading and analysis state.
package sentiment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rimkus-dev/sentiment/internal/engine"
)

// Session owns at most one classification engine and records the outcome of
// the last load and analysis. All methods are safe for concurrent use.
type Session struct {
	id       string
	provider engine.Provider
	model    string
	dtype    engine.DType
	logger   *slog.Logger
	observer Observer
	onChange func()

	mu      sync.Mutex
	lease   *lease
	pending *loadCall
	// gen is bumped by Dispose; loads started under an older gen are stale.
	gen uint64
	// epoch is bumped by Reset and Dispose; analyses started under an older
	// epoch no longer write results.
	epoch     uint64
	loadCtx   context.Context
	cancel    context.CancelFunc
	analyzing int
	lastErr   string
	result    *engine.Record
}

// lease counts the classify calls running on an engine so that Dispose never
// releases it underneath a running call.
type lease struct {
	engine   engine.Engine
	refs     int
	disposed bool
}

// loadCall is a load shared by every InitPipeline caller that arrives while
// it is in flight.
type loadCall struct {
	done chan struct{}
	gen  uint64
	err  error
}

// State is a point-in-time snapshot of a session.
type State struct {
	ID        string         `json:"id"`
	Model     string         `json:"model"`
	DType     engine.DType   `json:"dtype"`
	Ready     bool           `json:"ready"`
	Loading   bool           `json:"loading"`
	Analyzing bool           `json:"analyzing"`
	Error     string         `json:"error,omitempty"`
	Result    *engine.Record `json:"result,omitempty"`
}

// New creates a session backed by provider. Unless WithAutoInit(false) is
// given, the engine load starts before New returns.
func New(provider engine.Provider, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		id:       uuid.NewString(),
		provider: provider,
		model:    o.model,
		dtype:    o.dtype,
		observer: o.observer,
		onChange: o.onChange,
	}
	s.logger = o.logger.With("session", s.id)
	s.loadCtx, s.cancel = context.WithCancel(context.Background())

	if o.autoInit {
		s.mu.Lock()
		s.startLoadLocked()
		s.mu.Unlock()
	}

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Model returns the model identifier.
func (s *Session) Model() string {
	return s.model
}

// DType returns the weight precision.
func (s *Session) DType() engine.DType {
	return s.dtype
}

// InitPipeline loads the engine unless it is already loaded. Callers that
// arrive while a load is in flight wait for that load instead of starting
// another one. If ctx ends first, InitPipeline returns ctx.Err() and the load
// keeps running for the other waiters.
func (s *Session) InitPipeline(ctx context.Context) error {
	s.mu.Lock()
	if s.lease != nil {
		s.mu.Unlock()
		return nil
	}

	call := s.pending
	started := call == nil
	if started {
		call = s.startLoadLocked()
	}
	s.mu.Unlock()

	if started {
		s.notify()
	}

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startLoadLocked registers a new load and runs it in the background.
// s.mu must be held.
func (s *Session) startLoadLocked() *loadCall {
	call := &loadCall{
		done: make(chan struct{}),
		gen:  s.gen,
	}
	s.pending = call
	s.lastErr = ""

	go s.load(s.loadCtx, call)

	return call
}

func (s *Session) load(ctx context.Context, call *loadCall) {
	s.logger.Info("Loading sentiment model", "model", s.model, "dtype", s.dtype, "provider", s.provider.Name())

	start := time.Now()
	eng, err := s.provider.Load(ctx, engine.TaskSentimentAnalysis, s.model, engine.LoadOptions{DType: s.dtype})
	took := time.Since(start)

	s.mu.Lock()
	stale := call.gen != s.gen
	switch {
	case stale:
		call.err = ErrDisposed
	case err != nil:
		s.lastErr = LoadFailedMessage
		call.err = &LoadError{Model: s.model, DType: s.dtype, Err: err}
	default:
		s.lease = &lease{engine: eng}
	}
	if s.pending == call {
		s.pending = nil
	}
	s.mu.Unlock()

	switch {
	case stale:
		s.logger.Info("Discarding model load finished after dispose", "model", s.model)
		if err == nil {
			s.release(eng)
		}
	case err != nil:
		s.logger.Error("Failed to load sentiment model", "model", s.model, "dtype", s.dtype, "error", err)
	default:
		s.logger.Info("Sentiment model loaded", "model", s.model, "dtype", s.dtype, "took", took)
	}

	if !stale {
		s.observer.LoadFinished(s.model, s.dtype, took, err)
		s.notify()
	}

	close(call.done)
}

// Analyze classifies text and stores the top record as the last result.
// Empty or whitespace-only text, and a session without an engine, clear the
// last result without calling the engine. A load failure is returned as a
// *LoadError and a classification failure as an *AnalyzeError.
func (s *Session) Analyze(ctx context.Context, text string) error {
	if err := s.InitPipeline(ctx); err != nil {
		if errors.Is(err, ErrDisposed) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	l := s.lease
	if strings.TrimSpace(text) == "" || l == nil {
		s.result = nil
		s.mu.Unlock()
		s.notify()
		return nil
	}

	l.refs++
	s.analyzing++
	s.lastErr = ""
	epoch := s.epoch
	s.mu.Unlock()
	s.notify()

	start := time.Now()
	rec, err := classify(ctx, l.engine, text)
	took := time.Since(start)

	s.mu.Lock()
	current := epoch == s.epoch
	if current {
		s.analyzing--
		if err != nil {
			s.lastErr = AnalyzeFailedMessage
		} else {
			s.result = &rec
		}
	}
	l.refs--
	releaseNow := l.disposed && l.refs == 0
	s.mu.Unlock()

	if releaseNow {
		s.release(l.engine)
	}

	s.observer.AnalyzeFinished(took, rec.Label, err)
	if current {
		s.notify()
	}

	if err != nil {
		s.logger.Error("Failed to analyze sentiment", "error", err)
		return &AnalyzeError{Err: err}
	}

	s.logger.Debug("Sentiment analyzed", "label", rec.Label, "score", rec.Score, "took", took)
	return nil
}

func classify(ctx context.Context, e engine.Engine, text string) (engine.Record, error) {
	out, err := e.Classify(ctx, text)
	if err != nil {
		return engine.Record{}, err
	}

	rec, ok := out.First()
	if !ok {
		return engine.Record{}, engine.ErrEmptyOutput
	}

	return rec, nil
}

// Reset clears the last result and error. It does not touch the engine.
// Analyses still in flight return to their callers but no longer update the
// session.
func (s *Session) Reset() {
	s.mu.Lock()
	s.result = nil
	s.lastErr = ""
	s.analyzing = 0
	s.epoch++
	s.mu.Unlock()

	s.notify()
}

// Dispose releases the engine. It is safe to call more than once. A load in
// flight is cancelled and its outcome discarded; an engine still serving
// classify calls is released when the last of them returns. A later
// InitPipeline or Analyze loads a new engine.
func (s *Session) Dispose() {
	s.mu.Lock()
	l := s.lease
	active := l != nil || s.pending != nil || s.analyzing > 0
	if !active {
		s.mu.Unlock()
		return
	}

	s.lease = nil
	s.pending = nil
	s.analyzing = 0
	s.gen++
	s.epoch++

	s.cancel()
	s.loadCtx, s.cancel = context.WithCancel(context.Background())

	releaseNow := false
	if l != nil {
		l.disposed = true
		releaseNow = l.refs == 0
	}
	s.mu.Unlock()

	if releaseNow {
		s.release(l.engine)
	}

	s.logger.Debug("Sentiment session disposed")
	s.notify()
}

func (s *Session) release(e engine.Engine) {
	if err := e.Release(); err != nil {
		s.logger.Warn("Failed to release sentiment engine", "error", err)
	}
	s.observer.EngineReleased()
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:        s.id,
		Model:     s.model,
		DType:     s.dtype,
		Ready:     s.lease != nil,
		Loading:   s.pending != nil,
		Analyzing: s.analyzing > 0,
		Error:     s.lastErr,
	}
	if s.result != nil {
		rec := *s.result
		st.Result = &rec
	}

	return st
}

// Ready reports whether an engine is loaded.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lease != nil
}

// IsLoading reports whether a load is in flight.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending != nil
}

// IsAnalyzing reports whether a classify call is in flight.
func (s *Session) IsAnalyzing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.analyzing > 0
}

// LastError returns the message of the last failure, or "".
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// LastResult returns the last classification, or nil.
func (s *Session) LastResult() *engine.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return nil
	}
	rec := *s.result
	return &rec
}
