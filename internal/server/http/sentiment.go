package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/rimkus-dev/sentiment/internal/sentiment"
	"github.com/rimkus-dev/sentiment/internal/service"
)

type (
	// AnalyzeRequestDTO is the request body for the Analyze operation.
	AnalyzeRequestDTO struct {
		Text string `json:"text" maxLength:"10000" doc:"Text to classify. Empty text clears the last result."`
	}
)

type (
	// StateInput is the huma input for operations without a body.
	StateInput struct{}

	// AnalyzeInput is the huma input for the Analyze operation.
	AnalyzeInput struct {
		Body AnalyzeRequestDTO
	}

	// StateOutput is the huma output carrying a session snapshot.
	StateOutput struct {
		Body sentiment.State
	}

	// DisposeOutput is the huma output for the Dispose operation.
	DisposeOutput struct{}
)

// SentimentHandler handles HTTP requests for the shared sentiment session.
type SentimentHandler struct {
	service *service.Sentiment
}

// NewSentimentHandler creates a new SentimentHandler instance.
func NewSentimentHandler(api huma.API, svc *service.Sentiment) *SentimentHandler {
	h := &SentimentHandler{service: svc}

	huma.Register(api, huma.Operation{
		OperationID: "get-sentiment",
		Method:      http.MethodGet,
		Path:        "/sentiment",
		Summary:     "Get the sentiment session state",
		Tags:        []string{"sentiment"},
	}, h.handleState)

	huma.Register(api, huma.Operation{
		OperationID:   "analyze-sentiment",
		Method:        http.MethodPost,
		Path:          "/sentiment",
		Summary:       "Classify the sentiment of a text",
		Tags:          []string{"sentiment"},
		DefaultStatus: http.StatusOK,
	}, h.handleAnalyze)

	huma.Register(api, huma.Operation{
		OperationID:   "init-sentiment",
		Method:        http.MethodPost,
		Path:          "/sentiment/init",
		Summary:       "Load the sentiment model",
		Tags:          []string{"sentiment"},
		DefaultStatus: http.StatusOK,
	}, h.handleInit)

	huma.Register(api, huma.Operation{
		OperationID:   "reset-sentiment",
		Method:        http.MethodPost,
		Path:          "/sentiment/reset",
		Summary:       "Clear the last result and error",
		Tags:          []string{"sentiment"},
		DefaultStatus: http.StatusOK,
	}, h.handleReset)

	huma.Register(api, huma.Operation{
		OperationID:   "dispose-sentiment",
		Method:        http.MethodDelete,
		Path:          "/sentiment",
		Summary:       "Release the sentiment model",
		Tags:          []string{"sentiment"},
		DefaultStatus: http.StatusNoContent,
	}, h.handleDispose)

	sse.Register(api, huma.Operation{
		OperationID: "sentiment-events",
		Method:      http.MethodGet,
		Path:        "/sentiment/events",
		Summary:     "Stream sentiment session state changes (SSE)",
		Tags:        []string{"sentiment"},
	}, map[string]any{
		"state": sentiment.State{},
	}, h.handleEvents)

	return h
}

func (h *SentimentHandler) handleState(_ context.Context, _ *StateInput) (*StateOutput, error) {
	return &StateOutput{Body: h.service.Session().State()}, nil
}

// handleAnalyze handles the analyze-sentiment operation.
func (h *SentimentHandler) handleAnalyze(ctx context.Context, input *AnalyzeInput) (*StateOutput, error) {
	session := h.service.Session()
	if err := session.Analyze(ctx, input.Body.Text); err != nil {
		return nil, toHTTPError(err)
	}

	return &StateOutput{Body: session.State()}, nil
}

// handleInit handles the init-sentiment operation.
func (h *SentimentHandler) handleInit(ctx context.Context, _ *StateInput) (*StateOutput, error) {
	session := h.service.Session()
	if err := session.InitPipeline(ctx); err != nil {
		return nil, toHTTPError(err)
	}

	return &StateOutput{Body: session.State()}, nil
}

func (h *SentimentHandler) handleReset(_ context.Context, _ *StateInput) (*StateOutput, error) {
	session := h.service.Session()
	session.Reset()

	return &StateOutput{Body: session.State()}, nil
}

func (h *SentimentHandler) handleDispose(_ context.Context, _ *StateInput) (*DisposeOutput, error) {
	h.service.Session().Dispose()
	return &DisposeOutput{}, nil
}

// handleEvents sends the current state, then every change until the client
// goes away.
func (h *SentimentHandler) handleEvents(ctx context.Context, _ *StateInput, send sse.Sender) {
	states, cancel := h.service.Subscribe()
	defer cancel()

	if err := send.Data(h.service.Session().State()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := send.Data(state); err != nil {
				return
			}
		}
	}
}

// toHTTPError maps session errors to responses. Only the fixed user-facing
// messages leave the server.
func toHTTPError(err error) error {
	var loadErr *sentiment.LoadError
	var analyzeErr *sentiment.AnalyzeError

	switch {
	case errors.As(err, &loadErr):
		return huma.Error503ServiceUnavailable(sentiment.LoadFailedMessage)
	case errors.As(err, &analyzeErr):
		return huma.Error502BadGateway(sentiment.AnalyzeFailedMessage)
	case errors.Is(err, sentiment.ErrDisposed):
		return huma.Error409Conflict("session disposed during load")
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("request timed out")
	case errors.Is(err, context.Canceled):
		return huma.NewError(499, "request canceled")
	default:
		return huma.Error500InternalServerError("internal error")
	}
}
