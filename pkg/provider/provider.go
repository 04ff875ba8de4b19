package provider

import (
	"context"
	"fmt"
	"log/slog"

	"mosaic/pkg/config"
	provideropenai "mosaic/pkg/provider/openai"
	providertypes "mosaic/pkg/provider/types"
)

type (
	Tier     = providertypes.Tier
	Param    = providertypes.Param
	Tool     = providertypes.Tool
	ToolCall = providertypes.ToolCall
	ToolRun  = providertypes.ToolRun
)

const (
	TierSimple  = providertypes.TierSimple
	TierMedium  = providertypes.TierMedium
	TierComplex = providertypes.TierComplex
)

// Completer is the LLM completion capability agents depend on.
type Completer interface {
	Complete(ctx context.Context, prompt string, tier Tier, maxTokens int64) (string, error)
	CompleteWithTools(ctx context.Context, prompt string, tools []Tool, maxIterations int, meta map[string]string) (ToolRun, error)
}

// New resolves the configured completion backend.
func New(cfg *config.Config) (Completer, error) {
	name := cfg.Provider.Name
	if name == "" {
		name = "openai"
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving completion provider", "provider", name)

	switch name {
	case "openai":
		return provideropenai.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
