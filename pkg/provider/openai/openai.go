package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"mosaic/pkg/config"
	providertypes "mosaic/pkg/provider/types"
)

// maxToolResultChars caps the tool output fed back to the model so one
// oversized search result cannot blow the context window.
const maxToolResultChars = 5000

type Client struct {
	client         osdk.Client
	models         config.ModelTiers
	requestTimeout time.Duration
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Provider.OpenAI
	apiKey := strings.TrimSpace(providerCfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("provider.openai.api_key is required or OPENAI_API_KEY must be set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(providerCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(providerCfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(providerCfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		models:         providerCfg.Models,
		requestTimeout: requestTimeout,
	}, nil
}

// Complete runs a single-turn completion on the model mapped to tier.
func (c *Client) Complete(ctx context.Context, prompt string, tier providertypes.Tier, maxTokens int64) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "complete")
	startedAt := time.Now()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt is required")
	}

	model, err := c.modelFor(tier)
	if err != nil {
		return "", err
	}
	log.Debug("provider request started", "model", model, "tier", string(tier), "prompt_length", len(prompt))

	params := osdk.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []osdk.ChatCompletionMessageParamUnion{
			osdk.UserMessage(prompt),
		},
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = osdk.Int(maxTokens)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no choices")
		return "", errors.New("completion returned no choices")
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return "", errors.New("completion succeeded but returned no text")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return text, nil
}

// CompleteWithTools runs a tool-augmented conversation on the medium
// tier model. The loop executes requested tools and feeds results back
// until the model produces text or maxIterations rounds elapse; the
// last text seen is returned either way.
func (c *Client) CompleteWithTools(ctx context.Context, prompt string, tools []providertypes.Tool, maxIterations int, meta map[string]string) (providertypes.ToolRun, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "complete_with_tools")
	startedAt := time.Now()

	var run providertypes.ToolRun

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return run, errors.New("prompt is required")
	}
	if maxIterations <= 0 {
		maxIterations = 5
	}

	model, err := c.modelFor(providertypes.TierMedium)
	if err != nil {
		return run, err
	}
	log.Debug("provider request started", "model", model, "tool_count", len(tools), "prompt_length", len(prompt))

	byName := make(map[string]providertypes.Tool, len(tools))
	toolParams := make([]osdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		byName[tool.Name] = tool
		toolParams = append(toolParams, osdk.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: osdk.String(tool.Description),
			Parameters:  shared.FunctionParameters(tool.Schema()),
		}))
	}

	messages := []osdk.ChatCompletionMessageParamUnion{osdk.UserMessage(prompt)}

	for run.Iterations < maxIterations {
		run.Iterations++

		completion, err := c.client.Chat.Completions.New(ctx, osdk.ChatCompletionNewParams{
			Model:    shared.ChatModel(model),
			Messages: messages,
			Tools:    toolParams,
		})
		if err != nil {
			log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "iteration", run.Iterations, "error", err)
			return run, fmt.Errorf("tool completion failed: %w", err)
		}
		if len(completion.Choices) == 0 {
			return run, errors.New("tool completion returned no choices")
		}

		reply := completion.Choices[0].Message
		if text := strings.TrimSpace(reply.Content); text != "" {
			run.FinalText = text
		}
		if len(reply.ToolCalls) == 0 {
			break
		}

		messages = append(messages, reply.ToParam())
		for _, call := range reply.ToolCalls {
			result := c.runTool(ctx, byName, call.Function.Name, call.Function.Arguments, meta, &run)
			messages = append(messages, osdk.ToolMessage(result, call.ID))
		}
	}

	log.Debug("provider request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"iterations", run.Iterations,
		"tool_calls", len(run.Calls),
		"response_length", len(run.FinalText),
	)

	return run, nil
}

// runTool executes one requested tool and renders its result for the
// model. Failures become readable error strings so the conversation
// can continue.
func (c *Client) runTool(ctx context.Context, byName map[string]providertypes.Tool, name string, rawArgs string, meta map[string]string, run *providertypes.ToolRun) string {
	record := providertypes.ToolCall{Name: name}
	defer func() { run.Calls = append(run.Calls, record) }()

	tool, ok := byName[name]
	if !ok {
		record.Err = fmt.Errorf("unknown tool %q", name)
		record.Result = record.Err.Error()
		return record.Result
	}

	args := map[string]any{}
	if trimmed := strings.TrimSpace(rawArgs); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			record.Err = fmt.Errorf("invalid tool arguments: %w", err)
			record.Result = record.Err.Error()
			return record.Result
		}
	}
	record.Arguments = args

	output, err := tool.Run(ctx, args, meta)
	if err != nil {
		record.Err = err
		record.Result = fmt.Sprintf("tool %s failed: %v", name, err)
		return record.Result
	}

	record.Result = truncate(renderToolResult(output), maxToolResultChars)
	return record.Result
}

func renderToolResult(output any) string {
	switch value := output.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(encoded)
	}
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "... [truncated]"
}

func (c *Client) modelFor(tier providertypes.Tier) (string, error) {
	var model string
	switch tier {
	case providertypes.TierSimple:
		model = c.models.Simple
	case providertypes.TierMedium:
		model = c.models.Medium
	case providertypes.TierComplex:
		model = c.models.Complex
	default:
		return "", fmt.Errorf("unknown model tier %q", string(tier))
	}

	model = strings.TrimSpace(model)
	if model == "" {
		return "", fmt.Errorf("no model configured for tier %q", string(tier))
	}

	return model, nil
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}
