package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"mosaic/pkg/agents"
	"mosaic/pkg/message"
	"mosaic/pkg/store"
)

var (
	goalsUser    string
	goalTitle    string
	goalDesc     string
	goalHorizon  string
	goalStatus   string
	goalPriority int
	goalTarget   string
	goalNotes    string
	goalsTimeout = 30 * time.Second
)

var goalHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82"))

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "Manage user goals",
	Long:  "Lists and edits the goals the synthesis pipeline aligns briefings against.",
}

var goalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		payload := map[string]any{"action": "get_goals", "user_id": goalsUser}
		if goalStatus != "" {
			payload["status"] = goalStatus
		}
		data, err := sendGoalCommand(payload)
		if err != nil {
			fmt.Printf("failed to list goals: %v\n", err)
			return
		}

		goals, _ := data["goals"].([]store.Goal)
		if len(goals) == 0 {
			fmt.Println("no goals found")
			return
		}
		for _, goal := range goals {
			fmt.Println(goalHeaderStyle.Render(goal.Title))
			fmt.Printf("  %s · %s · %s · priority %d · %d%%\n",
				goal.ID, goal.Horizon, goal.Status, goal.Priority, goal.Progress)
			if !goal.TargetDate.IsZero() {
				fmt.Printf("  due %s\n", goal.TargetDate.Format("2006-01-02"))
			}
			if goal.Description != "" {
				fmt.Printf("  %s\n", goal.Description)
			}
		}
	},
}

var goalsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a goal",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		payload := map[string]any{
			"action":  "create_goal",
			"user_id": goalsUser,
			"title":   goalTitle,
		}
		if goalDesc != "" {
			payload["description"] = goalDesc
		}
		if goalHorizon != "" {
			payload["horizon"] = goalHorizon
		}
		if goalPriority != 0 {
			payload["priority"] = goalPriority
		}
		if goalTarget != "" {
			payload["target_date"] = goalTarget
		}
		if goalNotes != "" {
			payload["notes"] = goalNotes
		}
		data, err := sendGoalCommand(payload)
		if err != nil {
			fmt.Printf("failed to create goal: %v\n", err)
			return
		}
		fmt.Printf("created goal %v\n", data["goal_id"])
	},
}

var goalsDoneCmd = &cobra.Command{
	Use:   "done <goal-id>",
	Short: "Mark a goal completed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, err := sendGoalCommand(map[string]any{
			"action":  "update_goal",
			"user_id": goalsUser,
			"goal_id": args[0],
			"status":  store.GoalCompleted,
		})
		if err != nil {
			fmt.Printf("failed to complete goal: %v\n", err)
			return
		}
		fmt.Printf("goal %s completed\n", args[0])
	},
}

var goalsRemoveCmd = &cobra.Command{
	Use:   "rm <goal-id>",
	Short: "Archive a goal",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, err := sendGoalCommand(map[string]any{
			"action":  "delete_goal",
			"user_id": goalsUser,
			"goal_id": args[0],
		})
		if err != nil {
			fmt.Printf("failed to archive goal: %v\n", err)
			return
		}
		fmt.Printf("goal %s archived\n", args[0])
	},
}

// sendGoalCommand routes one goal operation through the orchestrator
// and unwraps the reply payload.
func sendGoalCommand(payload map[string]any) (map[string]any, error) {
	a, err := buildGoalApp()
	if err != nil {
		return nil, err
	}
	defer a.Close()

	msg := message.New(message.KindCommand, "cli", payload).To(agents.GoalAgentName)
	reply, ok := a.orch.SendAndWait(context.Background(), msg, goalsTimeout)
	if !ok {
		return nil, fmt.Errorf("timed out waiting for goal agent")
	}
	if reply.IsError() {
		return nil, fmt.Errorf("%v", reply.Payload["error"])
	}
	if success, _ := reply.Payload["success"].(bool); !success {
		return nil, fmt.Errorf("%v", reply.Payload["error"])
	}

	data, _ := reply.Payload["data"].(map[string]any)
	return data, nil
}

func init() {
	rootCmd.AddCommand(goalsCmd)
	goalsCmd.AddCommand(goalsListCmd, goalsAddCmd, goalsDoneCmd, goalsRemoveCmd)

	goalsCmd.PersistentFlags().StringVarP(&goalsUser, "user", "u", "", "user id the goals belong to")
	goalsCmd.MarkPersistentFlagRequired("user")

	goalsListCmd.Flags().StringVar(&goalStatus, "status", "", "filter by status (active, completed, paused, archived)")
	goalsAddCmd.Flags().StringVarP(&goalTitle, "title", "t", "", "goal title")
	goalsAddCmd.Flags().StringVarP(&goalDesc, "description", "d", "", "goal description")
	goalsAddCmd.Flags().StringVar(&goalHorizon, "horizon", "", "goal horizon (short_term, medium_term, long_term)")
	goalsAddCmd.Flags().IntVarP(&goalPriority, "priority", "p", 0, "goal priority (1 low to 5 high)")
	goalsAddCmd.Flags().StringVar(&goalTarget, "target", "", "optional target date (YYYY-MM-DD)")
	goalsAddCmd.Flags().StringVar(&goalNotes, "notes", "", "free-text notes")
	goalsAddCmd.MarkFlagRequired("title")
}
