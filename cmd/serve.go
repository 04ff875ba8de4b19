package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mosaic/pkg/scheduler"

	"github.com/spf13/cobra"
)

const queueInterval = time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent runtime",
	Long:  "Runs the orchestrator dispatch loop with the synthesis scheduler and, when configured, Telegram insight delivery.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		a, err := buildApp()
		if err != nil {
			fmt.Printf("failed to start: %v\n", err)
			return
		}
		defer a.Close()
		log := slog.Default().With("component", "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if a.cfg.Scheduler.Enabled {
			interval := time.Duration(a.cfg.Scheduler.IntervalMinutes) * time.Minute
			sched := scheduler.New(a.orch, a.cfg.ActiveUsers(), interval, nil)
			go sched.Run(runCtx)
		} else {
			log.Info("Scheduler disabled, cycles run on demand only")
		}

		log.Info("Runtime started",
			"agents", strings.Join(a.orch.AgentNames(), ","),
			"store", a.cfg.Store.Driver,
			"mail", a.cfg.Mail.Provider,
		)

		if err := a.orch.Run(runCtx, queueInterval); err != nil {
			log.Error("Runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
