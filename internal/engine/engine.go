package engine

import (
	"context"
	"sort"
)

// Task identifies the kind of pipeline a provider is asked to load.
type Task string

const (
	// TaskSentimentAnalysis is a single-label text classification pipeline.
	TaskSentimentAnalysis Task = "sentiment-analysis"
)

// LoadOptions carries per-load settings for a provider.
type LoadOptions struct {
	// DType is the numeric precision of the model weights to load.
	DType DType
}

// Provider loads classification engines.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Load creates a new engine for the given model. Every call returns a
	// fresh engine that the caller owns and must Release.
	Load(ctx context.Context, task Task, model string, opts LoadOptions) (Engine, error)
}

// Engine is a loaded classification model.
type Engine interface {
	// Classify runs the model on a single text.
	Classify(ctx context.Context, text string) (Output, error)

	// Release frees the resources held by the engine.
	Release() error
}

// Record is a single classification label and its confidence.
type Record struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Output is the result of a classify call. Engines fill either Records (one
// top record per input) or Nested (one ranked list per input).
type Output struct {
	Records []Record
	Nested  [][]Record
}

// First returns the top record of the first input.
func (o Output) First() (Record, bool) {
	if len(o.Nested) > 0 {
		if len(o.Nested[0]) == 0 {
			return Record{}, false
		}
		return o.Nested[0][0], true
	}

	if len(o.Records) > 0 {
		return o.Records[0], true
	}

	return Record{}, false
}

// SortByScore orders records by descending score.
func SortByScore(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Score > records[j].Score
	})
}
