package sentiment

import (
	"errors"
	"fmt"

	"github.com/rimkus-dev/sentiment/internal/engine"
)

// Messages recorded in LastError. They are shown to end users as-is.
const (
	LoadFailedMessage    = "Failed to load the sentiment analysis model."
	AnalyzeFailedMessage = "Failed to analyze sentiment."
)

// ErrDisposed is returned by InitPipeline when the session was disposed while
// the load was in flight.
var ErrDisposed = errors.New("sentiment session disposed")

// LoadError reports a failure to load the classification engine.
type LoadError struct {
	Model string
	DType engine.DType
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s (%s): %v", e.Model, e.DType, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// AnalyzeError reports a failure of the engine while classifying text.
type AnalyzeError struct {
	Err error
}

func (e *AnalyzeError) Error() string {
	return fmt.Sprintf("analyze: %v", e.Err)
}

func (e *AnalyzeError) Unwrap() error {
	return e.Err
}
