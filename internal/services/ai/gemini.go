package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

var errNoCandidates = errors.New("no candidates in response")

// GeminiProvider implements Provider on Google's Gemini API.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewGeminiProvider connects a Gemini client.
func NewGeminiProvider(ctx context.Context, apiKey, model string, logger *zap.Logger, debugMode bool) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api_key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, logger: logger, debugMode: debugMode}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) generativeModel(system string) *genai.GenerativeModel {
	m := p.client.GenerativeModel(p.model)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return m
}

func (p *GeminiProvider) logCall(ctx context.Context, operation string, latency time.Duration, err error) {
	if !p.debugMode {
		return
	}
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("model", p.model),
		zap.String("user_id", ExtractUserID(ctx)),
		zap.String("request_id", ExtractRequestID(ctx)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	}
	if err != nil {
		p.logger.Debug("llm_api_error", append(fields, zap.Error(err))...)
		return
	}
	p.logger.Debug("llm_api_response", fields...)
}

// GenerateText implements TextGenerator.
func (p *GeminiProvider) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	m := p.generativeModel(req.System)
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	start := time.Now()
	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	p.logCall(ctx, req.Operation, time.Since(start), err)
	if err != nil {
		return "", wrapAPIError(req.Operation, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errNoCandidates
	}
	return candidateText(resp.Candidates[0]), nil
}

// CallFunction implements FunctionCaller with function calling mode ANY,
// restricted to the single declared function.
func (p *GeminiProvider) CallFunction(ctx context.Context, req FunctionRequest) (*FunctionResponse, error) {
	m := p.generativeModel(req.System)
	m.Tools = []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        req.Function.Name,
			Description: req.Function.Description,
			Parameters:  req.Function.Parameters.toGenai(),
		}},
	}}
	m.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingAny,
			AllowedFunctionNames: []string{req.Function.Name},
		},
	}

	start := time.Now()
	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	p.logCall(ctx, req.Operation, time.Since(start), err)
	if err != nil {
		return nil, wrapAPIError(req.Operation, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errNoCandidates
	}

	cand := resp.Candidates[0]
	out := &FunctionResponse{Text: candidateText(cand)}
	for _, part := range cand.Content.Parts {
		call, ok := part.(genai.FunctionCall)
		if !ok || call.Name != req.Function.Name {
			continue
		}
		args, err := json.Marshal(call.Args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode function arguments: %w", err)
		}
		out.Called = true
		out.Name = call.Name
		out.Arguments = args
		break
	}
	return out, nil
}

func candidateText(c *genai.Candidate) string {
	var b strings.Builder
	for _, part := range c.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// RegisterGemini registers the Gemini provider with the registry
func RegisterGemini(registry *ProviderRegistry) {
	registry.Register("gemini", func(config map[string]string, logger *zap.Logger, debugMode bool) (Provider, error) {
		return NewGeminiProvider(context.Background(), config["api_key"], config["model"], logger, debugMode)
	})
}

var _ Provider = (*GeminiProvider)(nil)
