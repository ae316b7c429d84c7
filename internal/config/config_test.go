package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
version: "1"
storage:
  models_dir: ~/models
sentiment:
  model: acme/sst2-tiny
  dtype: q8
  auto_init: false
server:
  http_port: 8181
  allowed_origins:
    - https://rimkus.dev
content:
  blog_dir: content/blog
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validConfig)

	cfg, err := LoadAndValidate(path, "")
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, "~/models", cfg.Storage.ModelsDir)
	assert.Equal(t, "acme/sst2-tiny", cfg.Sentiment.Model)
	assert.Equal(t, "q8", cfg.Sentiment.DType)
	assert.Equal(t, DefaultProvider, cfg.Sentiment.Provider)
	assert.False(t, cfg.Sentiment.AutoInitEnabled())
	assert.Equal(t, 8181, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"https://rimkus.dev"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "content/blog", cfg.Content.BlogDir)
}

func TestParse_AppliesDefaults(t *testing.T) {
	t.Setenv("SENTIMENT_SERVER_GRPC_PORT", "9999")

	cfg, err := Parse([]byte(`version: "1"`), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Sentiment.Model)
	assert.Equal(t, DefaultDType, cfg.Sentiment.DType)
	assert.True(t, cfg.Sentiment.AutoInitEnabled())
	assert.Equal(t, 9999, cfg.Server.GRPCPort)
	assert.Equal(t, DefaultBlogDir, cfg.Content.BlogDir)
}

func TestParse_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown dtype", body: "version: \"1\"\nsentiment:\n  dtype: fp8\n"},
		{name: "unknown field", body: "version: \"1\"\nsentimnet: {}\n"},
		{name: "missing version", body: "sentiment:\n  model: x\n"},
		{name: "port out of range", body: "version: \"1\"\nserver:\n  http_port: 70000\n"},
		{name: "malformed yaml", body: "version: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body), "")
			assert.Error(t, err)
		})
	}
}

func TestLoadAndValidate_ExternalSchema(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(embeddedSchema), 0o644))
	path := writeConfig(t, dir, validConfig)

	cfg, err := LoadAndValidate(path, schemaPath)
	require.NoError(t, err)
	assert.Equal(t, "acme/sst2-tiny", cfg.Sentiment.Model)

	_, err = LoadAndValidate(path, filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestSentimentConfig_GetSource(t *testing.T) {
	s := SentimentConfig{Model: "acme/sst2"}
	src, err := s.GetSource()
	require.NoError(t, err)
	assert.Equal(t, HuggingFaceSource{Repo: "acme/sst2"}, src)
	assert.Equal(t, SourceTypeHuggingFace, src.Type())

	s.Source.HuggingFace = &HuggingFaceSource{Revision: "v2"}
	src, err = s.GetSource()
	require.NoError(t, err)
	assert.Equal(t, HuggingFaceSource{Repo: "acme/sst2", Revision: "v2"}, src)

	_, err = (&SentimentConfig{}).GetSource()
	assert.Error(t, err)
}

func TestSentimentConfig_SameModel(t *testing.T) {
	a := SentimentConfig{Provider: "hugot", Model: "m", DType: "fp16"}
	b := a
	b.Source.HuggingFace = &HuggingFaceSource{Token: "t"}
	assert.True(t, a.SameModel(b))

	b.DType = "q8"
	assert.False(t, a.SameModel(b))
}

func TestWatcher_Reload(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validConfig)

	var (
		mu       sync.Mutex
		reloaded *Config
	)
	w, err := NewWatcher(path, "", func(cfg *Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			reloaded = cfg
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, "acme/sst2-tiny", w.Snapshot().Sentiment.Model)

	updated := "version: \"1\"\nsentiment:\n  model: acme/other\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloaded != nil && reloaded.Sentiment.Model == "acme/other"
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "acme/other", w.Snapshot().Sentiment.Model)
	assert.GreaterOrEqual(t, w.ReloadCount(), uint32(1))
}

func TestNewWatcher_InvalidInitialConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "version: \"2\"\n")

	_, err := NewWatcher(path, "", func(*Config, error) {})
	assert.Error(t, err)
}
