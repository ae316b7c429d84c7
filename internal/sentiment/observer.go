package sentiment

import (
	"time"

	"github.com/rimkus-dev/sentiment/internal/engine"
)

// Observer receives lifecycle events from a Session. Implementations must be
// safe for concurrent use.
type Observer interface {
	// LoadFinished is called when an engine load settles.
	LoadFinished(model string, dtype engine.DType, took time.Duration, err error)

	// AnalyzeFinished is called when a classify call settles. label is empty
	// on failure.
	AnalyzeFinished(took time.Duration, label string, err error)

	// EngineReleased is called after an engine has been released.
	EngineReleased()
}

type nopObserver struct{}

func (nopObserver) LoadFinished(string, engine.DType, time.Duration, error) {}

func (nopObserver) AnalyzeFinished(time.Duration, string, error) {}

func (nopObserver) EngineReleased() {}
