package http

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rimkus-dev/sentiment/internal/config"
	"github.com/rimkus-dev/sentiment/internal/engine"
	"github.com/rimkus-dev/sentiment/internal/metrics"
	"github.com/rimkus-dev/sentiment/internal/service"

	"github.com/prometheus/client_golang/prometheus"
)

var errBoom = errors.New("boom")

type stubEngine struct {
	err error
}

func (e stubEngine) Classify(_ context.Context, text string) (engine.Output, error) {
	if e.err != nil {
		return engine.Output{}, e.err
	}
	label := "POSITIVE"
	if text == "awful" {
		label = "NEGATIVE"
	}
	return engine.Output{Nested: [][]engine.Record{{{Label: label, Score: 0.97}}}}, nil
}

func (stubEngine) Release() error { return nil }

type stubProvider struct {
	loadErr     error
	classifyErr error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Load(context.Context, engine.Task, string, engine.LoadOptions) (engine.Engine, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	return stubEngine{err: p.classifyErr}, nil
}

func newTestService(t *testing.T, provider *stubProvider) *service.Sentiment {
	t.Helper()

	registry := engine.NewRegistry()
	require.NoError(t, registry.Register(provider))

	off := false
	cfg := config.SentimentConfig{Provider: "stub", Model: "acme/sst2", DType: "fp16", AutoInit: &off}

	obs := metrics.NewSentimentMetrics(prometheus.NewRegistry())
	svc, err := service.NewSentiment(registry, cfg, obs, nil)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return svc
}
