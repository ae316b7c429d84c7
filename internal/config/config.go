package config

import (
	"errors"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"
)

// Config holds the main configuration for the application.
type Config struct {
	Version   string          `json:"version"             yaml:"version"`
	Storage   StorageConfig   `json:"storage,omitempty"   yaml:"storage,omitempty"`
	Sentiment SentimentConfig `json:"sentiment"           yaml:"sentiment"`
	Server    ServerConfig    `json:"server,omitempty"    yaml:"server,omitempty"`
	Content   ContentConfig   `json:"content,omitempty"   yaml:"content,omitempty"`
}

// StorageConfig holds configuration for caching and auto-download.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
}

// SentimentConfig selects the model served by the sentiment session.
type SentimentConfig struct {
	Provider string       `json:"provider,omitempty"  yaml:"provider,omitempty"`
	Model    string       `json:"model,omitempty"     yaml:"model,omitempty"`
	DType    string       `json:"dtype,omitempty"     yaml:"dtype,omitempty"`
	AutoInit *bool        `json:"auto_init,omitempty" yaml:"auto_init,omitempty"`
	Source   SourceConfig `json:"source,omitempty"    yaml:"source,omitempty"`
}

// ServerConfig holds listener settings for the daemon.
type ServerConfig struct {
	HTTPPort       int      `json:"http_port,omitempty"       yaml:"http_port,omitempty"`
	GRPCPort       int      `json:"grpc_port,omitempty"       yaml:"grpc_port,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// ContentConfig locates the blog collection.
type ContentConfig struct {
	BlogDir string `json:"blog_dir,omitempty" yaml:"blog_dir,omitempty"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo,omitempty"           yaml:"repo,omitempty"`
	Revision      string   `json:"revision,omitempty"       yaml:"revision,omitempty"`
	Token         string   `json:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        yaml:"include,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// GetSource returns the active source for the sentiment model. When no
// source is configured the model identifier is used as a Hugging Face repo.
func (s *SentimentConfig) GetSource() (ModelSource, error) {
	if s.Source.HuggingFace != nil {
		src := *s.Source.HuggingFace
		if src.Repo == "" {
			src.Repo = s.Model
		}
		return src, nil
	}

	if s.Model == "" {
		return nil, errors.New("no source configured for model")
	}

	return HuggingFaceSource{Repo: s.Model}, nil
}

// AutoInitEnabled reports whether the model should load at startup.
func (s *SentimentConfig) AutoInitEnabled() bool {
	return s.AutoInit == nil || *s.AutoInit
}

// SameModel reports whether two sentiment configs select the same engine.
func (s SentimentConfig) SameModel(other SentimentConfig) bool {
	return s.Provider == other.Provider && s.Model == other.Model && s.DType == other.DType
}
