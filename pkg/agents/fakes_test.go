package agents

import (
	"context"
	"strings"
	"sync"

	"mosaic/pkg/provider"
)

// fakeCompleter scripts completion responses by inspecting prompts.
type fakeCompleter struct {
	mu       sync.Mutex
	prompts  []string
	respond  func(prompt string, tier provider.Tier) (string, error)
	toolRuns func(prompt string) (provider.ToolRun, error)
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, tier provider.Tier, _ int64) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.respond == nil {
		return "", nil
	}
	return f.respond(prompt, tier)
}

func (f *fakeCompleter) CompleteWithTools(_ context.Context, prompt string, _ []provider.Tool, _ int, _ map[string]string) (provider.ToolRun, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.toolRuns == nil {
		return provider.ToolRun{FinalText: "ok"}, nil
	}
	return f.toolRuns(prompt)
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// promptMatching returns the first logged prompt containing marker.
func (f *fakeCompleter) promptMatching(marker string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, prompt := range f.prompts {
		if strings.Contains(prompt, marker) {
			return prompt
		}
	}
	return ""
}
