package cmd

import (
	"context"
	"fmt"
	"time"

	"mosaic/pkg/agents"
	"mosaic/pkg/message"
	"mosaic/pkg/store"

	"github.com/spf13/cobra"
)

var synthesizeUser string

const synthesizeTimeout = 10 * time.Minute

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Run one synthesis cycle now",
	Long:  "Triggers a full synthesis cycle for one user and prints the generated insights.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		a, err := buildApp()
		if err != nil {
			fmt.Printf("failed to start: %v\n", err)
			return
		}
		defer a.Close()

		msg := message.New(message.KindCommand, "cli", startCyclePayload(synthesizeUser)).To(agents.SynthesisAgentName)

		reply, ok := a.orch.SendAndWait(context.Background(), msg, synthesizeTimeout)
		if !ok {
			fmt.Println("synthesis cycle timed out")
			return
		}
		if reply.IsError() {
			fmt.Printf("synthesis cycle failed: %v\n", reply.Payload["error"])
			return
		}
		if success, _ := reply.Payload["success"].(bool); !success {
			fmt.Printf("synthesis cycle failed: %v\n", reply.Payload["error"])
			return
		}

		data, _ := reply.Payload["data"].(map[string]any)
		insights, _ := data["insights"].([]store.Insight)

		fmt.Printf("generated %d insight(s)\n\n", len(insights))
		for _, insight := range insights {
			printInsight(insight)
		}
	},
}

// startCyclePayload builds the cycle command for a CLI-initiated run.
// Hand-triggered cycles carry the "manual" tag; the scheduler stamps
// its own.
func startCyclePayload(userID string) map[string]any {
	return map[string]any{
		"action":       agents.ActionStartCycle,
		"user_id":      userID,
		"triggered_by": "manual",
	}
}

func init() {
	rootCmd.AddCommand(synthesizeCmd)
	synthesizeCmd.Flags().StringVarP(&synthesizeUser, "user", "u", "", "user id to synthesize for")
	synthesizeCmd.MarkFlagRequired("user")
}
