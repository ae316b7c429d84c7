// Package hugot runs text classification models in-process with the hugot
// ONNX pipelines.
package hugot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/rimkus-dev/sentiment/internal/engine"
	"github.com/rimkus-dev/sentiment/internal/model"
)

// ProviderName is the registry name of the hugot provider.
const ProviderName = "hugot"

// Resolver makes model files available locally.
type Resolver interface {
	Resolve(ctx context.Context, repo string, dtype engine.DType) (model.ModelInstance, error)
}

// classifier is the part of a text classification pipeline the engine uses.
type classifier interface {
	RunPipeline(inputs []string) (*pipelines.TextClassificationOutput, error)
}

// backend owns the pipelines of a provider.
type backend interface {
	NewClassifier(name, modelPath, onnxFile string) (classifier, error)
	ClosePipeline(name string) error
	Destroy() error
}

// Provider loads sentiment engines backed by hugot pipelines. Engines for the
// same model and dtype share one pipeline.
type Provider struct {
	resolver   Resolver
	newBackend func() (backend, error)

	mu        sync.Mutex
	backend   backend
	pipelines map[string]*sharedPipeline
}

type sharedPipeline struct {
	classifier classifier
	refs       int
	// run serializes classify calls on the pipeline.
	run sync.Mutex
}

// NewProvider creates a hugot provider that fetches models through resolver.
func NewProvider(resolver Resolver) *Provider {
	return &Provider{
		resolver:   resolver,
		newBackend: newSessionBackend,
		pipelines:  make(map[string]*sharedPipeline),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

// Load resolves the model files and returns an engine for them.
func (p *Provider) Load(ctx context.Context, task engine.Task, modelName string, opts engine.LoadOptions) (engine.Engine, error) {
	if task != engine.TaskSentimentAnalysis {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnsupportedTask, task)
	}
	if !opts.DType.Valid() {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnsupportedDType, opts.DType)
	}

	instance, err := p.resolver.Resolve(ctx, modelName, opts.DType)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backend == nil {
		b, err := p.newBackend()
		if err != nil {
			return nil, fmt.Errorf("create hugot session: %w", err)
		}
		p.backend = b
	}

	key := instance.ID
	shared, ok := p.pipelines[key]
	if !ok {
		dir, onnxName, err := stageModel(instance.Path, instance.OnnxFile, instance.DType)
		if err != nil {
			return nil, fmt.Errorf("stage model %s: %w", key, err)
		}
		c, err := p.backend.NewClassifier(key, dir, onnxName)
		if err != nil {
			return nil, fmt.Errorf("create pipeline for %s: %w", key, err)
		}
		shared = &sharedPipeline{classifier: c}
		p.pipelines[key] = shared
		slog.Debug("Pipeline created", "pipeline", key, "path", dir, "onnx_file", onnxName)
	}
	shared.refs++

	return &Engine{provider: p, key: key, pipeline: shared}, nil
}

func (p *Provider) release(key string, shared *sharedPipeline) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	shared.refs--
	if shared.refs > 0 || p.pipelines[key] != shared {
		return nil
	}

	delete(p.pipelines, key)
	if p.backend == nil {
		return nil
	}

	slog.Debug("Pipeline closed", "pipeline", key)
	return p.backend.ClosePipeline(key)
}

// Close destroys the hugot session and every pipeline in it.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backend == nil {
		return nil
	}

	err := p.backend.Destroy()
	p.backend = nil
	clear(p.pipelines)

	return err
}

// Engine is a handle on a shared hugot pipeline.
type Engine struct {
	provider *Provider
	key      string
	pipeline *sharedPipeline
	once     sync.Once
	released bool
	mu       sync.Mutex
}

// ErrReleased is returned by Classify after Release.
var ErrReleased = errors.New("engine released")

// Classify runs the pipeline on text.
func (e *Engine) Classify(ctx context.Context, text string) (engine.Output, error) {
	if err := ctx.Err(); err != nil {
		return engine.Output{}, err
	}

	e.mu.Lock()
	released := e.released
	e.mu.Unlock()
	if released {
		return engine.Output{}, ErrReleased
	}

	e.pipeline.run.Lock()
	out, err := e.pipeline.classifier.RunPipeline([]string{text})
	e.pipeline.run.Unlock()
	if err != nil {
		return engine.Output{}, err
	}

	return toOutput(out), nil
}

// Release drops the handle. The pipeline is closed with its last handle.
func (e *Engine) Release() error {
	var err error
	e.once.Do(func() {
		e.mu.Lock()
		e.released = true
		e.mu.Unlock()

		err = e.provider.release(e.key, e.pipeline)
	})
	return err
}

func toOutput(out *pipelines.TextClassificationOutput) engine.Output {
	if out == nil {
		return engine.Output{}
	}

	nested := make([][]engine.Record, 0, len(out.ClassificationOutputs))
	for _, labels := range out.ClassificationOutputs {
		records := make([]engine.Record, 0, len(labels))
		for _, l := range labels {
			records = append(records, engine.Record{Label: l.Label, Score: float64(l.Score)})
		}
		engine.SortByScore(records)
		nested = append(nested, records)
	}

	return engine.Output{Nested: nested}
}

// sessionBackend adapts a hugot session.
type sessionBackend struct {
	session *hugot.Session
}

func newSessionBackend() (backend, error) {
	session, err := newSession()
	if err != nil {
		return nil, err
	}

	return &sessionBackend{session: session}, nil
}

func (b *sessionBackend) NewClassifier(name, modelPath, onnxFile string) (classifier, error) {
	cfg := hugot.TextClassificationConfig{
		ModelPath:    modelPath,
		Name:         name,
		OnnxFilename: onnxFile,
	}

	return hugot.NewPipeline(b.session, cfg)
}

func (b *sessionBackend) ClosePipeline(name string) error {
	return hugot.ClosePipeline[*pipelines.TextClassificationPipeline](b.session, name)
}

func (b *sessionBackend) Destroy() error {
	return b.session.Destroy()
}
