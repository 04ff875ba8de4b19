package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"mosaic/pkg/store"
)

var (
	insightsUser  string
	insightsAll   bool
	insightsLimit int
)

var (
	briefingTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	alertTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	insightMetaStyle   = lipgloss.NewStyle().Faint(true)
	insightBodyStyle   = lipgloss.NewStyle().PaddingLeft(2)
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "List generated insights",
	Long:  "Lists stored insights for a user, newest first. New insights only by default.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := loadRuntimeConfig()
		if err != nil {
			fmt.Printf("failed to start: %v\n", err)
			return
		}
		st, err := openStore(cfg)
		if err != nil {
			fmt.Printf("failed to open store: %v\n", err)
			return
		}
		defer st.Close()

		insights, err := st.Insights(insightsUser, !insightsAll, insightsLimit)
		if err != nil {
			fmt.Printf("failed to list insights: %v\n", err)
			return
		}
		if len(insights) == 0 {
			fmt.Println("no insights found")
			return
		}

		for _, insight := range insights {
			printInsight(insight)
		}
	},
}

var insightsViewCmd = &cobra.Command{
	Use:   "view <insight-id>",
	Short: "Show one insight and mark it viewed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadRuntimeConfig()
		if err != nil {
			fmt.Printf("failed to start: %v\n", err)
			return
		}
		st, err := openStore(cfg)
		if err != nil {
			fmt.Printf("failed to open store: %v\n", err)
			return
		}
		defer st.Close()

		if err := st.MarkInsightViewed(args[0]); err != nil {
			fmt.Printf("failed to mark insight viewed: %v\n", err)
			return
		}
		fmt.Printf("insight %s marked viewed\n", args[0])
	},
}

func printInsight(insight store.Insight) {
	style := briefingTitleStyle
	icon := "📋"
	switch insight.Kind {
	case store.InsightPriorityAlert:
		style = alertTitleStyle
		icon = "🚨"
	case store.InsightStatusUpdate:
		icon = "ℹ️"
	}

	fmt.Println(style.Render(fmt.Sprintf("%s %s", icon, insight.Title)))
	fmt.Println(insightMetaStyle.Render(fmt.Sprintf("%s · %s · %s · %s",
		insight.ID, insight.Kind, insight.Status, insight.CreatedAt.Local().Format("2006-01-02 15:04"))))
	fmt.Println(insightBodyStyle.Render(insight.Content))
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(insightsCmd)
	insightsCmd.AddCommand(insightsViewCmd)

	insightsCmd.Flags().StringVarP(&insightsUser, "user", "u", "", "user id to list insights for")
	insightsCmd.Flags().BoolVarP(&insightsAll, "all", "a", false, "include viewed insights")
	insightsCmd.Flags().IntVarP(&insightsLimit, "limit", "n", 20, "maximum insights to show")
	insightsCmd.MarkFlagRequired("user")
}
