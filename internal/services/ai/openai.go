package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// OpenAIProvider implements Provider using OpenAI's chat completions API.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIClient builds a client with the timeout and base URL used across the service.
func NewOpenAIClient(apiKey, baseURL string) openai.Client {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: DefaultTimeout}),
	)
}

// NewOpenAIProvider creates a new OpenAI provider with logger support
func NewOpenAIProvider(apiKey, baseURL, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		client:    NewOpenAIClient(apiKey, baseURL),
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) debug(ctx context.Context, msg, operation string, fields ...zap.Field) {
	if !p.debugMode {
		return
	}
	fields = append([]zap.Field{
		zap.String("operation", operation),
		zap.String("model", p.model),
		zap.String("user_id", ExtractUserID(ctx)),
		zap.String("recording_id", ExtractRecordingID(ctx)),
		zap.String("request_id", ExtractRequestID(ctx)),
	}, fields...)
	p.logger.Debug(msg, fields...)
}

func wrapAPIError(operation string, err error) error {
	if apiErr := ExtractAPIError(err); apiErr != nil {
		return fmt.Errorf("failed to %s: %w", operation, apiErr)
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// GenerateText implements TextGenerator.
func (p *OpenAIProvider) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
		// Temperature omitted; some models only accept their default value.
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	p.debug(ctx, "llm_api_request", req.Operation,
		zap.Int("prompt_length", len(req.Prompt)),
		zap.String("prompt_preview", SanitizePrompt(req.Prompt, false)),
	)

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		p.debug(ctx, "llm_api_error", req.Operation, zap.Error(err), zap.Int64("latency_ms", latency.Milliseconds()))
		return "", wrapAPIError(req.Operation, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	p.debug(ctx, "llm_api_response", req.Operation,
		zap.Int("response_length", len(content)),
		zap.String("response_preview", SanitizeResponse(content, true)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)
	return content, nil
}

// CallFunction implements FunctionCaller. The model is told a tool call is
// required; a response without one is reported with Called=false.
func (p *OpenAIProvider) CallFunction(ctx context.Context, req FunctionRequest) (*FunctionResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Tools: []openai.ChatCompletionToolUnionParam{
			openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
				Name:        req.Function.Name,
				Description: openai.String(req.Function.Description),
				Parameters:  openai.FunctionParameters(req.Function.Parameters.ToJSONSchema()),
			}),
		},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("required"),
		},
	}

	p.debug(ctx, "llm_api_request", req.Operation,
		zap.String("function", req.Function.Name),
		zap.Int("prompt_length", len(req.Prompt)),
		zap.String("prompt_preview", SanitizePrompt(req.Prompt, false)),
	)

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		p.debug(ctx, "llm_api_error", req.Operation, zap.Error(err), zap.Int64("latency_ms", latency.Milliseconds()))
		return nil, wrapAPIError(req.Operation, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	msg := resp.Choices[0].Message
	out := &FunctionResponse{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		if call.Function.Name != req.Function.Name {
			continue
		}
		out.Called = true
		out.Name = call.Function.Name
		out.Arguments = json.RawMessage(call.Function.Arguments)
		break
	}

	p.debug(ctx, "llm_api_response", req.Operation,
		zap.Bool("function_called", out.Called),
		zap.Int("arguments_length", len(out.Arguments)),
		zap.String("response_preview", SanitizeResponse(string(out.Arguments)+out.Text, true)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)
	return out, nil
}

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry) {
	registry.Register("openai", func(config map[string]string, logger *zap.Logger, debugMode bool) (Provider, error) {
		apiKey, ok := config["api_key"]
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("openai api_key is required")
		}
		return NewOpenAIProvider(apiKey, config["base_url"], config["model"], logger, debugMode), nil
	})
}

var _ Provider = (*OpenAIProvider)(nil)
