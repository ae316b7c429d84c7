package engine

import "errors"

// Error definitions for the engine package.
var (
	ErrNotFound          = errors.New("provider not found in registry")
	ErrAlreadyRegistered = errors.New("provider is already registered in the registry")
	ErrUnsupportedTask   = errors.New("unsupported task")
	ErrUnsupportedDType  = errors.New("unsupported dtype")
	ErrEmptyOutput       = errors.New("engine returned no classification")
)
