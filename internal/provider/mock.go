package provider

import (
	"context"
	"fmt"
)

// Mock is the fallback Generator for unrecognized provider names. It
// echoes a labeled summary of the request so the pipeline stays runnable
// without a real provider.
type Mock struct{}

// NewMock creates the echo provider.
func NewMock() *Mock {
	return &Mock{}
}

// Generate returns a labeled echo of the prompt.
func (m *Mock) Generate(ctx context.Context, prompt, model, apiKey string) (string, error) {
	return fmt.Sprintf("Mock %s response:\n\n%s", model, prompt), nil
}
