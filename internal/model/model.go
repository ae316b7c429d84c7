package model

import (
	"time"

	"github.com/rimkus-dev/sentiment/internal/engine"
)

// ModelStatus is the current status of a model's local files.
type ModelStatus string

const (
	// ModelStatusUnloaded indicates that the model has not been resolved yet.
	ModelStatusUnloaded ModelStatus = "unloaded"

	// ModelStatusLoading indicates that the model files are being fetched.
	ModelStatusLoading ModelStatus = "loading"

	// ModelStatusLoaded indicates that the model files are available locally.
	ModelStatusLoaded ModelStatus = "loaded"

	// ModelStatusFailed indicates that the model files could not be fetched.
	ModelStatusFailed ModelStatus = "failed"
)

// ModelInstance describes the local copy of a model at a given precision.
type ModelInstance struct {
	LoadedAt *time.Time   `json:"loaded_at,omitempty"`
	ID       string       `json:"id"`
	Repo     string       `json:"repo"`
	DType    engine.DType `json:"dtype"`
	Path     string       `json:"-"`
	OnnxFile string       `json:"onnx_file"`
	Status   ModelStatus  `json:"status"`
	Error    string       `json:"error,omitempty"`
}

// InstanceID returns the registry key for a repo at a given precision.
func InstanceID(repo string, dtype engine.DType) string {
	return repo + "@" + string(dtype)
}

// NewModelInstance creates a new model instance.
func NewModelInstance(repo string, dtype engine.DType) ModelInstance {
	return ModelInstance{
		ID:       InstanceID(repo, dtype),
		Repo:     repo,
		DType:    dtype,
		OnnxFile: dtype.OnnxFile(),
		Status:   ModelStatusUnloaded,
	}
}

// SetStatus sets the status of the model instance.
func (mi *ModelInstance) SetStatus(status ModelStatus) {
	mi.Status = status
	if status == ModelStatusLoaded {
		now := time.Now()
		mi.LoadedAt = &now
		mi.Error = ""
	}
}

// SetError marks the model instance as failed.
func (mi *ModelInstance) SetError(err error) {
	mi.Status = ModelStatusFailed
	mi.Error = err.Error()
}
