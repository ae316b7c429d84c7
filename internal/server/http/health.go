package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/rimkus-dev/sentiment/internal/model"
	"github.com/rimkus-dev/sentiment/internal/sentiment"
	"github.com/rimkus-dev/sentiment/internal/service"
	"github.com/rimkus-dev/sentiment/internal/version"
)

// Health statuses reported by /healthz.
const (
	HealthStatusOK       = "ok"
	HealthStatusLoading  = "loading"
	HealthStatusDegraded = "degraded"
)

// ModelLister lists the models known to the daemon.
type ModelLister interface {
	List() []model.ModelInstance
}

type (
	// MemoryDTO describes host memory.
	MemoryDTO struct {
		Total       uint64  `json:"total"`
		Available   uint64  `json:"available"`
		UsedPercent float64 `json:"used_percent"`
	}

	// HealthDTO is the response body for the Health operation.
	HealthDTO struct {
		Memory  *MemoryDTO            `json:"memory,omitempty"`
		Status  string                `json:"status"`
		Version string                `json:"version"`
		Models  []model.ModelInstance `json:"models"`
		Session sentiment.State       `json:"session"`
	}

	// HealthOutput is the huma output for the Health operation.
	HealthOutput struct {
		Body HealthDTO
	}
)

// HealthHandler reports daemon health.
type HealthHandler struct {
	service *service.Sentiment
	models  ModelLister
	memory  func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(api huma.API, svc *service.Sentiment, models ModelLister) *HealthHandler {
	h := &HealthHandler{
		service: svc,
		models:  models,
		memory:  mem.VirtualMemoryWithContext,
	}

	huma.Register(api, huma.Operation{
		OperationID: "healthz",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Report session readiness, models and host memory",
		Tags:        []string{"health"},
	}, h.handleHealth)

	return h
}

func (h *HealthHandler) handleHealth(ctx context.Context, _ *StateInput) (*HealthOutput, error) {
	state := h.service.Session().State()

	body := HealthDTO{
		Status:  healthStatus(state),
		Version: version.Version,
		Models:  []model.ModelInstance{},
		Session: state,
	}
	if h.models != nil {
		body.Models = h.models.List()
	}

	vm, err := h.memory(ctx)
	if err != nil {
		slog.Warn("Failed to read host memory", "error", err)
	} else {
		body.Memory = &MemoryDTO{
			Total:       vm.Total,
			Available:   vm.Available,
			UsedPercent: vm.UsedPercent,
		}
	}

	return &HealthOutput{Body: body}, nil
}

func healthStatus(state sentiment.State) string {
	switch {
	case state.Error == sentiment.LoadFailedMessage:
		return HealthStatusDegraded
	case state.Loading:
		return HealthStatusLoading
	default:
		return HealthStatusOK
	}
}
