//go:build !onnx

// Stubs that keep the package importable without the onnx build tag. Binaries
// built without the tag can still select the mock embedder at runtime.
package onnx

import (
	"context"
	"errors"
)

// Config configures the ONNX embedder.
type Config struct {
	ModelPath         string
	TokenizerPath     string
	SharedLibraryPath string
	Dimensions        int
}

// Embedder is unavailable without the onnx build tag.
type Embedder struct{}

var errNotBuilt = errors.New("onnx embedder not compiled in (rebuild with -tags onnx)")

// New always fails without the onnx build tag.
func New(Config) (*Embedder, error) {
	return nil, errNotBuilt
}

func (e *Embedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errNotBuilt
}

func (e *Embedder) Dimensions() int { return 0 }

func (e *Embedder) Close() error { return nil }
