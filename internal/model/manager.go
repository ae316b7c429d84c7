package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rimkus-dev/sentiment/internal/config"
	"github.com/rimkus-dev/sentiment/internal/config/source"
	"github.com/rimkus-dev/sentiment/internal/engine"
	"github.com/rimkus-dev/sentiment/internal/envvar"
	"github.com/rimkus-dev/sentiment/internal/xfs"
)

// baseIncludes are the non-weight files a text classification repo needs.
var baseIncludes = []string{
	"config.json",
	"tokenizer.json",
	"tokenizer_config.json",
	"special_tokens_map.json",
	"vocab.txt",
}

// Manager resolves models to local files, downloading them on first use.
type Manager struct {
	registry   *Registry
	downloader source.Downloader
	modelsPath string
	template   config.HuggingFaceSource
	// mirror maps the configured model name to the repo its files come from.
	mirror map[string]string
	mu     sync.RWMutex
	// fetchMu serializes downloads so two sessions never write the same
	// directory at once.
	fetchMu sync.Mutex
}

// NewManager creates a Manager that stores models under modelsPath.
func NewManager(modelsPath string, downloader source.Downloader) *Manager {
	return &Manager{
		registry:   NewRegistry(),
		downloader: downloader,
		modelsPath: modelsPath,
	}
}

// Registry returns the model registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// ModelsPath returns the directory models are stored in.
func (m *Manager) ModelsPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.modelsPath
}

// LoadFromConfig applies the storage and source settings of cfg. Models
// already resolved stay in the registry.
func (m *Manager) LoadFromConfig(cfg *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modelsPath = ResolveModelsPath(cfg)
	m.template = config.HuggingFaceSource{}
	m.mirror = nil

	src, err := cfg.Sentiment.GetSource()
	if hf, ok := src.(config.HuggingFaceSource); err == nil && ok {
		m.template = hf
		if hf.Repo != cfg.Sentiment.Model {
			m.mirror = map[string]string{cfg.Sentiment.Model: hf.Repo}
		}
	}

	slog.Info("Model manager configured", "models_path", m.modelsPath)
}

// Resolve makes sure the files of repo at the given precision are available
// locally and returns the resulting instance.
func (m *Manager) Resolve(ctx context.Context, repo string, dtype engine.DType) (ModelInstance, error) {
	m.mu.RLock()
	modelsPath := m.modelsPath
	src := m.template
	if mirrored, ok := m.mirror[repo]; ok {
		repo = mirrored
	}
	m.mu.RUnlock()

	instance := NewModelInstance(repo, dtype)
	instance.SetStatus(ModelStatusLoading)
	m.registry.Set(instance)

	src.Repo = repo
	src.Include = append(append(append([]string{}, baseIncludes...), src.Include...), dtype.OnnxFile())

	m.fetchMu.Lock()
	path, cached, err := m.fetch(ctx, src, modelsPath)
	m.fetchMu.Unlock()
	if err != nil {
		instance.SetError(err)
		m.registry.Set(instance)
		return instance, fmt.Errorf("failed to download model %s into %s: %w", repo, modelsPath, err)
	}

	instance.Path = path
	if _, err := os.Stat(filepath.Join(path, filepath.FromSlash(instance.OnnxFile))); err != nil {
		err = fmt.Errorf("%w: %s (%s)", ErrWeightsMissing, repo, instance.OnnxFile)
		instance.SetError(err)
		m.registry.Set(instance)
		return instance, err
	}

	instance.SetStatus(ModelStatusLoaded)
	m.registry.Set(instance)

	slog.Info("Model resolved", "model_id", instance.ID, "path", path, "cached", cached)
	return instance, nil
}

func (m *Manager) fetch(ctx context.Context, src config.HuggingFaceSource, modelsPath string) (string, bool, error) {
	if err := source.EnsureModelsDirectory(modelsPath); err != nil {
		return "", false, fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
	}

	return m.downloader.Download(ctx, src, modelsPath)
}

// ResolveModelsPath returns the path to the models directory.
// Precedence:
// 1. SENTIMENT_MODELS_PATH environment variable.
// 2. ModelsDir field in the config.
// 3. Default models path.
func ResolveModelsPath(cfg *config.Config) string {
	if p := os.Getenv(envvar.SentimentModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(config.DefaultModelsPath())
}
