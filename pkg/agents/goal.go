package agents

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"mosaic/pkg/agent"
	"mosaic/pkg/store"
)

// GoalAgentName is the orchestrator registry name of the goal agent.
const GoalAgentName = "goal"

// synthesisGoalLimit caps how many active goals feed a synthesis
// prompt.
const synthesisGoalLimit = 5

// GoalAgent manages user objectives. Deleting a goal archives it; goal
// rows are never removed, so history survives.
type GoalAgent struct {
	store store.Store
	log   *slog.Logger
}

func NewGoalAgent(st store.Store, log *slog.Logger) *GoalAgent {
	if log == nil {
		log = slog.Default()
	}
	return &GoalAgent{store: st, log: log.With("component", "agents.goal")}
}

func (a *GoalAgent) Name() string { return GoalAgentName }

// Process dispatches on the "action" argument.
func (a *GoalAgent) Process(_ context.Context, ac agent.Context) agent.Result {
	if ac.UserID == "" {
		return agent.Fail("user_id is required for goal operations")
	}

	switch action := ac.String("action"); action {
	case "create_goal":
		return a.createGoal(ac)
	case "get_goals":
		return a.getGoals(ac)
	case "update_goal":
		return a.updateGoal(ac)
	case "delete_goal":
		return a.deleteGoal(ac)
	case "analyze_alignment":
		return a.analyzeAlignment(ac)
	default:
		return agent.Failf("unknown goal action %q", action)
	}
}

func (a *GoalAgent) createGoal(ac agent.Context) agent.Result {
	title := ac.String("title")
	if title == "" {
		return agent.Fail("title is required")
	}

	horizon := ac.String("horizon")
	if horizon == "" {
		horizon = store.HorizonShortTerm
	}
	if !store.ValidHorizon(horizon) {
		return agent.Failf("invalid horizon %q", horizon)
	}

	priority := intArg(ac.Metadata, "priority", store.GoalPriorityDefault)
	if !store.ValidGoalPriority(priority) {
		return agent.Failf("invalid priority %d", priority)
	}

	targetDate, ok := parseTargetDate(ac.String("target_date"))
	if !ok {
		return agent.Failf("invalid target_date %q", ac.String("target_date"))
	}

	// Progress always starts at zero.
	goal := store.Goal{
		UserID:      ac.UserID,
		Title:       title,
		Description: ac.String("description"),
		Horizon:     horizon,
		Status:      store.GoalActive,
		Priority:    priority,
		TargetDate:  targetDate,
		Milestones:  stringSlice(ac.Metadata["milestones"]),
		Notes:       ac.String("notes"),
	}
	if err := a.store.AddGoal(goal); err != nil {
		return agent.Failf("create goal: %v", err)
	}

	created, err := a.latestGoalByTitle(ac.UserID, title)
	if err != nil {
		return agent.Failf("create goal: %v", err)
	}

	a.log.Info("Created goal", "user_id", ac.UserID, "goal_id", created.ID)
	return agent.OK(map[string]any{"goal_id": created.ID, "goal": created})
}

// latestGoalByTitle re-reads the goal just written; AddGoal generates
// the id internally.
func (a *GoalAgent) latestGoalByTitle(userID, title string) (store.Goal, error) {
	goals, err := a.store.Goals(userID, store.GoalActive)
	if err != nil {
		return store.Goal{}, err
	}
	for _, goal := range goals {
		if goal.Title == title {
			return goal, nil
		}
	}
	return store.Goal{}, store.ErrNotFound
}

func (a *GoalAgent) getGoals(ac agent.Context) agent.Result {
	status := ac.String("status")
	if status != "" && !store.ValidGoalStatus(status) {
		return agent.Failf("invalid status %q", status)
	}

	goals, err := a.store.Goals(ac.UserID, status)
	if err != nil {
		return agent.Failf("list goals: %v", err)
	}

	activeCount := 0
	for _, goal := range goals {
		if goal.Status == store.GoalActive {
			activeCount++
		}
	}

	return agent.OK(map[string]any{
		"goals":        goals,
		"count":        len(goals),
		"active_count": activeCount,
	})
}

func (a *GoalAgent) updateGoal(ac agent.Context) agent.Result {
	goalID := ac.String("goal_id")
	if goalID == "" {
		return agent.Fail("goal_id is required")
	}

	goal, err := a.store.Goal(goalID)
	if errors.Is(err, store.ErrNotFound) {
		return agent.Fail("goal not found")
	}
	if err != nil {
		return agent.Failf("load goal: %v", err)
	}
	if goal.UserID != ac.UserID {
		return agent.Fail("unauthorized")
	}

	var updated []string
	apply := func(key string, target *string, validate func(string) bool) agent.Result {
		value, present := ac.Metadata[key].(string)
		if !present {
			return agent.Result{Success: true}
		}
		if validate != nil && !validate(value) {
			return agent.Failf("invalid %s %q", key, value)
		}
		*target = value
		updated = append(updated, key)
		return agent.Result{Success: true}
	}
	applyInt := func(key string, target *int, validate func(int) bool) agent.Result {
		if _, present := ac.Metadata[key]; !present {
			return agent.Result{Success: true}
		}
		value := intArg(ac.Metadata, key, -1)
		if !validate(value) {
			return agent.Failf("invalid %s %v", key, ac.Metadata[key])
		}
		*target = value
		updated = append(updated, key)
		return agent.Result{Success: true}
	}
	applyDate := func(key string, target *time.Time) agent.Result {
		value, present := ac.Metadata[key].(string)
		if !present {
			return agent.Result{Success: true}
		}
		parsed, ok := parseTargetDate(value)
		if !ok {
			return agent.Failf("invalid %s %q", key, value)
		}
		*target = parsed
		updated = append(updated, key)
		return agent.Result{Success: true}
	}

	for _, step := range []agent.Result{
		apply("title", &goal.Title, nil),
		apply("description", &goal.Description, nil),
		apply("horizon", &goal.Horizon, store.ValidHorizon),
		apply("status", &goal.Status, store.ValidGoalStatus),
		apply("notes", &goal.Notes, nil),
		applyInt("priority", &goal.Priority, store.ValidGoalPriority),
		applyInt("progress", &goal.Progress, store.ValidProgress),
		applyDate("target_date", &goal.TargetDate),
	} {
		if !step.Success {
			return step
		}
	}

	if value, present := ac.Metadata["milestones"]; present {
		goal.Milestones = stringSlice(value)
		updated = append(updated, "milestones")
	}

	if err := a.store.UpdateGoal(goal); err != nil {
		return agent.Failf("update goal: %v", err)
	}

	a.log.Info("Updated goal", "user_id", ac.UserID, "goal_id", goalID, "fields", updated)
	return agent.OK(map[string]any{"goal_id": goalID, "updated_fields": updated})
}

// deleteGoal archives instead of removing.
func (a *GoalAgent) deleteGoal(ac agent.Context) agent.Result {
	goalID := ac.String("goal_id")
	if goalID == "" {
		return agent.Fail("goal_id is required")
	}

	return a.updateGoal(agent.Context{
		UserID: ac.UserID,
		Metadata: map[string]any{
			"goal_id": goalID,
			"status":  store.GoalArchived,
		},
	})
}

// alignmentMatchScore is the flat score assigned to a keyword match.
const alignmentMatchScore = 0.7

// analyzeAlignment scores a list of tasks against the user's active
// goals by keyword overlap. Tasks arrive as a "tasks" list of objects
// with a "content" field.
func (a *GoalAgent) analyzeAlignment(ac agent.Context) agent.Result {
	goals, err := a.store.Goals(ac.UserID, store.GoalActive)
	if err != nil {
		return agent.Failf("load goals: %v", err)
	}

	tasks := taskList(ac.Metadata["tasks"])

	var alignments []map[string]any
	for _, task := range tasks {
		content, _ := task["content"].(string)
		taskText := strings.ToLower(content)

		var aligned []map[string]any
		for _, goal := range goals {
			if !goalMatchesTask(goal, taskText) {
				continue
			}
			aligned = append(aligned, map[string]any{
				"goal_id":         goal.ID,
				"goal_title":      goal.Title,
				"goal_horizon":    goal.Horizon,
				"alignment_score": alignmentMatchScore,
			})
		}
		if len(aligned) > 0 {
			alignments = append(alignments, map[string]any{
				"task":          task,
				"aligned_goals": aligned,
			})
		}
	}

	percentage := 0.0
	if len(tasks) > 0 {
		percentage = float64(len(alignments)) / float64(len(tasks)) * 100
	}

	return agent.OK(map[string]any{
		"alignments":           alignments,
		"aligned_task_count":   len(alignments),
		"total_task_count":     len(tasks),
		"alignment_percentage": percentage,
	})
}

// goalMatchesTask reports whether any substantial word of the goal text
// appears in the task text.
func goalMatchesTask(goal store.Goal, taskText string) bool {
	goalText := strings.ToLower(goal.Title + " " + goal.Description)
	for _, keyword := range strings.Fields(goalText) {
		if len(keyword) > 3 && strings.Contains(taskText, keyword) {
			return true
		}
	}
	return false
}

func parseTargetDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func stringSlice(value any) []string {
	switch items := value.(type) {
	case []string:
		return items
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if text, ok := item.(string); ok {
				out = append(out, text)
			}
		}
		return out
	default:
		return nil
	}
}

func taskList(value any) []map[string]any {
	switch items := value.(type) {
	case []map[string]any:
		return items
	case []any:
		tasks := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if task, ok := item.(map[string]any); ok {
				tasks = append(tasks, task)
			}
		}
		return tasks
	default:
		return nil
	}
}

// ActiveGoalsForSynthesis returns the user's active goals trimmed for
// prompt context.
func (a *GoalAgent) ActiveGoalsForSynthesis(userID string) []store.Goal {
	goals, err := a.store.Goals(userID, store.GoalActive)
	if err != nil {
		a.log.Warn("Could not fetch goals for synthesis", "user_id", userID, "error", err)
		return nil
	}
	if len(goals) > synthesisGoalLimit {
		goals = goals[:synthesisGoalLimit]
	}
	return goals
}
