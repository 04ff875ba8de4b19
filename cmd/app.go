package cmd

import (
	"fmt"
	"log/slog"

	"mosaic/pkg/agent"
	"mosaic/pkg/agents"
	"mosaic/pkg/config"
	"mosaic/pkg/logger"
	"mosaic/pkg/mail"
	"mosaic/pkg/notify"
	"mosaic/pkg/orchestrator"
	"mosaic/pkg/provider"
	"mosaic/pkg/store"
	"mosaic/pkg/store/memory"
	"mosaic/pkg/store/sqlite"
)

// app bundles the wired runtime shared by serve and synthesize.
type app struct {
	cfg   *config.Config
	store store.Store
	orch  *orchestrator.Orchestrator
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Default().Warn("Failed to close store", "error", err)
		}
	}
}

// loadRuntimeConfig loads configuration and installs the process logger.
func loadRuntimeConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	return cfg, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.New(), nil
	default:
		return sqlite.Open(cfg.Store.Path)
	}
}

// buildApp wires the full runtime: store, provider, mailbox, the three
// core agents and the optional notifier, all registered on one
// orchestrator.
func buildApp() (*app, error) {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	completer, err := provider.New(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initialize provider: %w", err)
	}

	mailbox, err := mail.New(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initialize mail provider: %w", err)
	}

	mailAgent := agents.NewMailAgent(completer, mailbox, nil)
	goalAgent := agents.NewGoalAgent(st, nil)
	synthesisAgent := agents.NewSynthesisAgent(completer, st, mailAgent, goalAgent, nil)

	orch := orchestrator.New(nil)
	synthesisAgent.SetPublisher(orch)

	mailRunner := agent.NewRunner(mailAgent, nil)
	mailRunner.AddCapability("mail_analysis")
	goalRunner := agent.NewRunner(goalAgent, nil)
	goalRunner.AddCapability("goal_management")
	synthesisRunner := agent.NewRunner(synthesisAgent, nil)
	synthesisRunner.AddCapability("proactive_synthesis")

	orch.Register(mailRunner)
	orch.Register(goalRunner)
	orch.Register(synthesisRunner)

	if cfg.Notify.Telegram.Enabled {
		notifier, err := notify.NewTelegram(cfg.Notify.Telegram, nil)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("initialize notifier: %w", err)
		}
		notifyRunner := agent.NewRunner(notifier, nil)
		notifyRunner.AddCapability("notifications")
		orch.Register(notifyRunner)
	}

	return &app{cfg: cfg, store: st, orch: orch}, nil
}

// buildGoalApp wires the minimal runtime for goal commands: no provider
// credentials or mailbox needed.
func buildGoalApp() (*app, error) {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	orch := orchestrator.New(nil)
	orch.Register(agent.NewRunner(agents.NewGoalAgent(st, nil), nil))

	return &app{cfg: cfg, store: st, orch: orch}, nil
}
