package sentiment

import (
	"log/slog"

	"github.com/rimkus-dev/sentiment/internal/engine"
)

const (
	// DefaultModel is the pretrained model loaded when no model is configured.
	DefaultModel = "Xenova/distilbert-base-uncased-finetuned-sst-2-english"

	// DefaultDType is the precision used when none is configured.
	DefaultDType = engine.DTypeFP16
)

// Option configures a Session.
type Option func(*options)

type options struct {
	model    string
	dtype    engine.DType
	autoInit bool
	logger   *slog.Logger
	observer Observer
	onChange func()
}

func defaultOptions() options {
	return options{
		model:    DefaultModel,
		dtype:    DefaultDType,
		autoInit: true,
		logger:   slog.Default(),
		observer: nopObserver{},
	}
}

// WithModel sets the model identifier. An empty name keeps the default.
func WithModel(name string) Option {
	return func(o *options) {
		if name != "" {
			o.model = name
		}
	}
}

// WithDType sets the weight precision. An empty dtype keeps the default.
func WithDType(d engine.DType) Option {
	return func(o *options) {
		if d != "" {
			o.dtype = d
		}
	}
}

// WithAutoInit controls whether New starts loading the engine right away.
func WithAutoInit(enabled bool) Option {
	return func(o *options) {
		o.autoInit = enabled
	}
}

// WithLogger sets the logger used by the session.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver sets the observer notified of loads, analyses and releases.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithOnChange registers a callback run after every state change. The
// callback runs without the session lock held and may call State.
func WithOnChange(fn func()) Option {
	return func(o *options) {
		o.onChange = fn
	}
}
