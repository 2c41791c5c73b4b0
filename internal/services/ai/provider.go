package ai

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// TextRequest is a single free-text generation.
type TextRequest struct {
	// Operation names the call in logs (e.g. "normalize_transcript").
	Operation string
	System    string
	Prompt    string
	MaxTokens int
}

// FunctionSpec declares the one function a model is required to call.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}

// FunctionRequest asks the model to answer by calling Function.
type FunctionRequest struct {
	Operation string
	System    string
	Prompt    string
	Function  FunctionSpec
}

// FunctionResponse is what came back from a function-constrained call.
// When the model ignored the function, Called is false and Text carries
// whatever free text it produced instead.
type FunctionResponse struct {
	Called    bool
	Name      string
	Arguments json.RawMessage
	Text      string
}

// TextGenerator produces free text.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// FunctionCaller performs a call constrained to a single function contract.
type FunctionCaller interface {
	CallFunction(ctx context.Context, req FunctionRequest) (*FunctionResponse, error)
}

// Provider is the interface for AI providers
type Provider interface {
	TextGenerator
	FunctionCaller
	Name() string
}

// ProviderFactory creates an AI provider based on the provider type
type ProviderFactory func(config map[string]string, logger *zap.Logger, debugMode bool) (Provider, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// NewDefaultRegistry returns a registry with every built-in provider registered.
func NewDefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	RegisterOpenAI(r)
	RegisterGemini(r)
	return r
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, config map[string]string, logger *zap.Logger, debugMode bool) (Provider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(config, logger, debugMode)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
