package service

import (
	"github.com/rimkus-dev/sentiment/internal/engine"
	"github.com/rimkus-dev/sentiment/internal/engine/hugot"
)

// NewProviders builds the engine provider registry. Models are fetched
// through resolver.
func NewProviders(resolver hugot.Resolver) (*engine.Registry, error) {
	registry := engine.NewRegistry()
	if err := registry.Register(hugot.NewProvider(resolver)); err != nil {
		return nil, err
	}

	return registry, nil
}
