package sentiment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rimkus-dev/sentiment/internal/engine"
)

// --- Fakes ---

type fakeEngine struct {
	mu       sync.Mutex
	classify func(ctx context.Context, text string) (engine.Output, error)
	calls    int
	released int
}

func (e *fakeEngine) Classify(ctx context.Context, text string) (engine.Output, error) {
	e.mu.Lock()
	e.calls++
	fn := e.classify
	e.mu.Unlock()

	if fn == nil {
		return engine.Output{Nested: [][]engine.Record{{{Label: "POSITIVE", Score: 0.9998}, {Label: "NEGATIVE", Score: 0.0002}}}}, nil
	}
	return fn(ctx, text)
}

func (e *fakeEngine) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.released++
	return nil
}

func (e *fakeEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fakeEngine) Released() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

type fakeProvider struct {
	mu       sync.Mutex
	gate     chan struct{}
	err      error
	loads    int
	engines  []*fakeEngine
	classify func(ctx context.Context, text string) (engine.Output, error)
	lastOpts engine.LoadOptions
	lastName string
	lastTask engine.Task
}

func (p *fakeProvider) Name() string {
	return "fake"
}

// Load blocks on gate when one is set, ignoring ctx, to model providers that
// cannot be interrupted.
func (p *fakeProvider) Load(_ context.Context, task engine.Task, model string, opts engine.LoadOptions) (engine.Engine, error) {
	p.mu.Lock()
	p.loads++
	p.lastTask, p.lastName, p.lastOpts = task, model, opts
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}

	e := &fakeEngine{classify: p.classify}
	p.engines = append(p.engines, e)
	return e, nil
}

func (p *fakeProvider) Loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

func (p *fakeProvider) Engine(i int) *fakeEngine {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.engines) {
		return nil
	}
	return p.engines[i]
}

func (p *fakeProvider) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Classify(ctx context.Context, text string) (engine.Output, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(engine.Output), args.Error(1)
}

func (m *MockEngine) Release() error {
	args := m.Called()
	return args.Error(0)
}

type mockProvider struct {
	engine engine.Engine
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) Load(context.Context, engine.Task, string, engine.LoadOptions) (engine.Engine, error) {
	return p.engine, nil
}

type recordingObserver struct {
	loads    atomic.Int32
	loadErrs atomic.Int32
	analyses atomic.Int32
	failures atomic.Int32
	releases atomic.Int32
}

func (o *recordingObserver) LoadFinished(_ string, _ engine.DType, _ time.Duration, err error) {
	o.loads.Add(1)
	if err != nil {
		o.loadErrs.Add(1)
	}
}

func (o *recordingObserver) AnalyzeFinished(_ time.Duration, _ string, err error) {
	o.analyses.Add(1)
	if err != nil {
		o.failures.Add(1)
	}
}

func (o *recordingObserver) EngineReleased() {
	o.releases.Add(1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(p engine.Provider, opts ...Option) *Session {
	return New(p, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

// blockingClassify returns a classify func that signals entered and waits for release.
func blockingClassify(entered chan<- struct{}, release <-chan struct{}) func(context.Context, string) (engine.Output, error) {
	return func(context.Context, string) (engine.Output, error) {
		entered <- struct{}{}
		<-release
		return engine.Output{Records: []engine.Record{{Label: "NEGATIVE", Score: 0.97}}}, nil
	}
}

// --- Construction ---

func TestNew_Defaults(t *testing.T) {
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false))

	assert.Equal(t, DefaultModel, s.Model())
	assert.Equal(t, engine.DTypeFP16, s.DType())
	assert.NotEmpty(t, s.ID())
}

func TestNew_WithoutAutoInit(t *testing.T) {
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false))

	assert.False(t, s.Ready())
	assert.False(t, s.IsLoading())
	assert.Equal(t, 0, p.Loads())
}

func TestNew_AutoInitMarksLoadingSynchronously(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	s := newSession(p)

	assert.True(t, s.IsLoading())

	close(p.gate)
	require.NoError(t, s.InitPipeline(context.Background()))

	assert.False(t, s.IsLoading())
	assert.True(t, s.Ready())
	assert.Equal(t, 1, p.Loads())
}

func TestNew_AutoInitFailureSettles(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{}), err: errors.New("network down")}
	s := newSession(p)
	require.True(t, s.IsLoading())

	close(p.gate)

	require.Eventually(t, func() bool { return !s.IsLoading() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, LoadFailedMessage, s.LastError())
	assert.False(t, s.Ready())
}

func TestNew_PassesModelAndDType(t *testing.T) {
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false), WithModel("acme/tiny-sst2"), WithDType(engine.DTypeQ8))

	require.NoError(t, s.InitPipeline(context.Background()))

	assert.Equal(t, engine.TaskSentimentAnalysis, p.lastTask)
	assert.Equal(t, "acme/tiny-sst2", p.lastName)
	assert.Equal(t, engine.DTypeQ8, p.lastOpts.DType)
}

// --- InitPipeline ---

func TestInitPipeline_SecondCallIsNoop(t *testing.T) {
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false))

	require.NoError(t, s.InitPipeline(context.Background()))
	require.NoError(t, s.InitPipeline(context.Background()))

	assert.Equal(t, 1, p.Loads())
}

func TestInitPipeline_ConcurrentCallsShareOneLoad(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	s := newSession(p, WithAutoInit(false))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.InitPipeline(context.Background())
		}()
	}

	require.Eventually(t, s.IsLoading, time.Second, time.Millisecond)
	close(p.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, p.Loads())
	assert.True(t, s.Ready())
}

func TestInitPipeline_LoadFailure(t *testing.T) {
	cause := errors.New("model not found")
	p := &fakeProvider{err: cause}
	s := newSession(p, WithAutoInit(false), WithDType(engine.DTypeQ4))

	err := s.InitPipeline(context.Background())

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, DefaultModel, loadErr.Model)
	assert.Equal(t, engine.DTypeQ4, loadErr.DType)
	assert.Equal(t, LoadFailedMessage, s.LastError())
	assert.False(t, s.IsLoading())
	assert.False(t, s.Ready())
}

func TestInitPipeline_RetryAfterFailure(t *testing.T) {
	p := &fakeProvider{err: errors.New("timeout")}
	s := newSession(p, WithAutoInit(false))

	require.Error(t, s.InitPipeline(context.Background()))

	p.SetErr(nil)
	require.NoError(t, s.InitPipeline(context.Background()))

	assert.Equal(t, 2, p.Loads())
	assert.Empty(t, s.LastError())
	assert.True(t, s.Ready())
}

func TestInitPipeline_ContextEndsBeforeLoad(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	s := newSession(p, WithAutoInit(false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.InitPipeline(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, s.IsLoading())

	close(p.gate)
	require.NoError(t, s.InitPipeline(context.Background()))
	assert.Equal(t, 1, p.Loads())
}

// --- Analyze ---

func TestAnalyze_Success(t *testing.T) {
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false))

	require.NoError(t, s.Analyze(context.Background(), "I love this."))

	res := s.LastResult()
	require.NotNil(t, res)
	assert.Equal(t, "POSITIVE", res.Label)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 1.0)
	assert.False(t, s.IsAnalyzing())
	assert.Empty(t, s.LastError())
	assert.Equal(t, 1, p.Loads())
}

func TestAnalyze_FlatOutput(t *testing.T) {
	p := &fakeProvider{classify: func(context.Context, string) (engine.Output, error) {
		return engine.Output{Records: []engine.Record{{Label: "NEGATIVE", Score: 0.91}}}, nil
	}}
	s := newSession(p, WithAutoInit(false))

	require.NoError(t, s.Analyze(context.Background(), "This is awful."))

	assert.Equal(t, &engine.Record{Label: "NEGATIVE", Score: 0.91}, s.LastResult())
}

func TestAnalyze_EmptyInputNeverCallsEngine(t *testing.T) {
	eng := new(MockEngine)
	eng.On("Classify", mock.Anything, "I love this.").
		Return(engine.Output{Records: []engine.Record{{Label: "POSITIVE", Score: 0.99}}}, nil).Once()

	s := newSession(&mockProvider{engine: eng}, WithAutoInit(false))

	require.NoError(t, s.Analyze(context.Background(), "I love this."))
	require.NotNil(t, s.LastResult())

	for _, text := range []string{"", "   ", "\n\t "} {
		require.NoError(t, s.Analyze(context.Background(), text))
		assert.Nil(t, s.LastResult())
		assert.False(t, s.IsAnalyzing())
	}

	eng.AssertNumberOfCalls(t, "Classify", 1)
	eng.AssertExpectations(t)
}

func TestAnalyze_Failure(t *testing.T) {
	cause := errors.New("tensor shape mismatch")
	eng := new(MockEngine)
	eng.On("Classify", mock.Anything, "good").
		Return(engine.Output{Records: []engine.Record{{Label: "POSITIVE", Score: 0.8}}}, nil).Once()
	eng.On("Classify", mock.Anything, "bad").
		Return(engine.Output{}, cause).Once()

	s := newSession(&mockProvider{engine: eng}, WithAutoInit(false))

	require.NoError(t, s.Analyze(context.Background(), "good"))
	before := s.LastResult()

	err := s.Analyze(context.Background(), "bad")

	var analyzeErr *AnalyzeError
	require.ErrorAs(t, err, &analyzeErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, AnalyzeFailedMessage, s.LastError())
	assert.False(t, s.IsAnalyzing())
	assert.Equal(t, before, s.LastResult())

	eng.AssertExpectations(t)
}

func TestAnalyze_EmptyOutputIsAnalyzeError(t *testing.T) {
	p := &fakeProvider{classify: func(context.Context, string) (engine.Output, error) {
		return engine.Output{Nested: [][]engine.Record{{}}}, nil
	}}
	s := newSession(p, WithAutoInit(false))

	err := s.Analyze(context.Background(), "hello")

	var analyzeErr *AnalyzeError
	require.ErrorAs(t, err, &analyzeErr)
	assert.ErrorIs(t, err, engine.ErrEmptyOutput)
	assert.Nil(t, s.LastResult())
}

func TestAnalyze_LoadFailurePropagates(t *testing.T) {
	p := &fakeProvider{err: errors.New("unsupported dtype")}
	s := newSession(p, WithAutoInit(false))

	err := s.Analyze(context.Background(), "hello")

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, LoadFailedMessage, s.LastError())
	assert.Nil(t, s.LastResult())
	assert.False(t, s.IsAnalyzing())
}

func TestAnalyze_ClearsPreviousError(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	p := &fakeProvider{classify: func(context.Context, string) (engine.Output, error) {
		if fail.Load() {
			return engine.Output{}, errors.New("boom")
		}
		return engine.Output{Records: []engine.Record{{Label: "POSITIVE", Score: 0.7}}}, nil
	}}
	s := newSession(p, WithAutoInit(false))

	require.Error(t, s.Analyze(context.Background(), "x"))
	require.Equal(t, AnalyzeFailedMessage, s.LastError())

	fail.Store(false)
	require.NoError(t, s.Analyze(context.Background(), "x"))
	assert.Empty(t, s.LastError())
}

func TestAnalyze_IsAnalyzingDuringCall(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	p := &fakeProvider{classify: blockingClassify(entered, release)}
	s := newSession(p, WithAutoInit(false))
	require.NoError(t, s.InitPipeline(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Analyze(context.Background(), "meh") }()

	<-entered
	assert.True(t, s.IsAnalyzing())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.IsAnalyzing())
	assert.Equal(t, "NEGATIVE", s.LastResult().Label)
}

// --- Reset ---

func TestReset(t *testing.T) {
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false))
	require.NoError(t, s.Analyze(context.Background(), "I love this."))

	s.Reset()

	assert.Nil(t, s.LastResult())
	assert.Empty(t, s.LastError())
	assert.False(t, s.IsAnalyzing())
	assert.True(t, s.Ready())
	assert.Equal(t, 0, p.Engine(0).Released())

	require.NoError(t, s.Analyze(context.Background(), "again"))
	assert.Equal(t, 1, p.Loads())
}

func TestReset_ClearsError(t *testing.T) {
	p := &fakeProvider{err: errors.New("nope")}
	s := newSession(p, WithAutoInit(false))
	require.Error(t, s.InitPipeline(context.Background()))

	s.Reset()

	assert.Empty(t, s.LastError())
}

func TestReset_DiscardsInFlightResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	p := &fakeProvider{classify: blockingClassify(entered, release)}
	s := newSession(p, WithAutoInit(false))
	require.NoError(t, s.InitPipeline(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Analyze(context.Background(), "late") }()
	<-entered

	s.Reset()
	assert.False(t, s.IsAnalyzing())

	close(release)
	require.NoError(t, <-done)
	assert.Nil(t, s.LastResult())
	assert.False(t, s.IsAnalyzing())
}

// --- Dispose ---

func TestDispose_Idempotent(t *testing.T) {
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false))
	require.NoError(t, s.InitPipeline(context.Background()))

	s.Dispose()
	assert.False(t, s.Ready())

	s.Dispose()
	assert.False(t, s.Ready())

	assert.Equal(t, 1, p.Engine(0).Released())
}

func TestDispose_WithoutEngineIsNoop(t *testing.T) {
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false))

	s.Dispose()

	assert.False(t, s.Ready())
	assert.False(t, s.IsLoading())
	assert.Equal(t, 0, p.Loads())
}

func TestDispose_ThenAnalyzeLoadsNewEngine(t *testing.T) {
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false))
	require.NoError(t, s.Analyze(context.Background(), "first"))

	s.Dispose()
	require.NoError(t, s.Analyze(context.Background(), "second"))

	assert.Equal(t, 2, p.Loads())
	assert.Equal(t, 1, p.Engine(0).Released())
	assert.Equal(t, 1, p.Engine(0).Calls())
	assert.Equal(t, 1, p.Engine(1).Calls())
	assert.True(t, s.Ready())
}

func TestDispose_DuringLoadReleasesLateEngine(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	s := newSession(p, WithAutoInit(false))

	waiter := make(chan error, 1)
	go func() { waiter <- s.InitPipeline(context.Background()) }()
	require.Eventually(t, s.IsLoading, time.Second, time.Millisecond)

	s.Dispose()
	assert.False(t, s.IsLoading())

	close(p.gate)
	assert.ErrorIs(t, <-waiter, ErrDisposed)

	require.Eventually(t, func() bool {
		e := p.Engine(0)
		return e != nil && e.Released() == 1
	}, time.Second, time.Millisecond)
	assert.False(t, s.Ready())
	assert.Empty(t, s.LastError())
}

func TestDispose_DuringLoadAnalyzeReturnsWithoutResult(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	s := newSession(p, WithAutoInit(false))

	done := make(chan error, 1)
	go func() { done <- s.Analyze(context.Background(), "hello") }()
	require.Eventually(t, s.IsLoading, time.Second, time.Millisecond)

	s.Dispose()
	close(p.gate)

	require.NoError(t, <-done)
	assert.Nil(t, s.LastResult())
}

func TestDispose_DuringAnalyzeDefersRelease(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	p := &fakeProvider{classify: blockingClassify(entered, release)}
	s := newSession(p, WithAutoInit(false))
	require.NoError(t, s.InitPipeline(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Analyze(context.Background(), "slow") }()
	<-entered

	s.Dispose()
	assert.False(t, s.IsAnalyzing())
	assert.Equal(t, 0, p.Engine(0).Released())

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, p.Engine(0).Released())
	assert.Nil(t, s.LastResult())
}

// --- Observation ---

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	var fail atomic.Bool
	p := &fakeProvider{classify: func(context.Context, string) (engine.Output, error) {
		if fail.Load() {
			return engine.Output{}, errors.New("boom")
		}
		return engine.Output{Records: []engine.Record{{Label: "POSITIVE", Score: 0.6}}}, nil
	}}
	s := newSession(p, WithAutoInit(false), WithObserver(obs))

	require.NoError(t, s.Analyze(context.Background(), "ok"))
	fail.Store(true)
	require.Error(t, s.Analyze(context.Background(), "ok"))
	s.Dispose()

	assert.Equal(t, int32(1), obs.loads.Load())
	assert.Equal(t, int32(0), obs.loadErrs.Load())
	assert.Equal(t, int32(2), obs.analyses.Load())
	assert.Equal(t, int32(1), obs.failures.Load())
	assert.Equal(t, int32(1), obs.releases.Load())
}

func TestObserver_SkipsLoadFinishedAfterDispose(t *testing.T) {
	obs := &recordingObserver{}
	p := &fakeProvider{gate: make(chan struct{})}
	s := newSession(p, WithAutoInit(false), WithObserver(obs))

	waiter := make(chan error, 1)
	go func() { waiter <- s.InitPipeline(context.Background()) }()
	require.Eventually(t, s.IsLoading, time.Second, time.Millisecond)

	s.Dispose()
	close(p.gate)
	assert.ErrorIs(t, <-waiter, ErrDisposed)

	require.Eventually(t, func() bool {
		e := p.Engine(0)
		return e != nil && e.Released() == 1
	}, time.Second, time.Millisecond)
	assert.Zero(t, obs.loads.Load())
	assert.Zero(t, obs.loadErrs.Load())
}

func TestOnChange(t *testing.T) {
	var changes atomic.Int32
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false), WithOnChange(func() { changes.Add(1) }))

	require.NoError(t, s.Analyze(context.Background(), "I love this."))
	afterAnalyze := changes.Load()
	assert.GreaterOrEqual(t, afterAnalyze, int32(3))

	s.Reset()
	assert.Equal(t, afterAnalyze+1, changes.Load())
}

func TestState(t *testing.T) {
	p := &fakeProvider{}
	s := newSession(p, WithAutoInit(false), WithModel("acme/sst2"), WithDType(engine.DTypeInt8))

	st := s.State()
	assert.Equal(t, s.ID(), st.ID)
	assert.Equal(t, "acme/sst2", st.Model)
	assert.Equal(t, engine.DTypeInt8, st.DType)
	assert.False(t, st.Ready)
	assert.Nil(t, st.Result)

	require.NoError(t, s.Analyze(context.Background(), "nice"))

	st = s.State()
	assert.True(t, st.Ready)
	assert.False(t, st.Loading)
	assert.False(t, st.Analyzing)
	require.NotNil(t, st.Result)
	assert.Equal(t, "POSITIVE", st.Result.Label)

	// Snapshot must not alias session state.
	st.Result.Label = "CHANGED"
	assert.Equal(t, "POSITIVE", s.LastResult().Label)
}
