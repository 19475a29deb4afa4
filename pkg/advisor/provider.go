// Package advisor asks an LLM to turn the failing part of an audit report into a
// prioritised remediation narrative. It is optional: audits never depend on it.
package advisor

import (
	"context"
	"fmt"
	"strings"
)

// Message is one chat turn.
type Message struct {
	Role    string // "system", "user" or "model"
	Content string
}

// LLMProvider is a chat model backend.
type LLMProvider interface {
	GenerateResponse(ctx context.Context, history []Message) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Providers lists the backends NewProvider can build.
var Providers = []string{"gemini"}

// NewProvider builds the named backend.
func NewProvider(ctx context.Context, providerName, apiKey, modelName string) (LLMProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("no API key configured for %s", providerName)
	}
	switch strings.ToLower(providerName) {
	case "gemini":
		return NewGeminiProvider(ctx, apiKey, modelName)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: %s)", providerName, strings.Join(Providers, ", "))
	}
}
