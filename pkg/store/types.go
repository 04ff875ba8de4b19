package store

import (
	"strings"
	"time"
)

// MaxInteractionHistory caps the per-contact interaction log. Older
// entries fall off the front as new ones arrive.
const MaxInteractionHistory = 50

// Interaction is one observed exchange with a contact.
type Interaction struct {
	Timestamp   time.Time `json:"timestamp"`
	Subject     string    `json:"subject,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
	Source      string    `json:"source,omitempty"`
	RecordID    string    `json:"record_id,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	Sentiment   string    `json:"sentiment,omitempty"`
	ReplyNeeded bool      `json:"reply_needed,omitempty"`
}

// Contact accumulates interaction history for one correspondent of one
// user, keyed by normalized email address.
type Contact struct {
	ID                  string        `json:"id"`
	UserID              string        `json:"user_id"`
	Email               string        `json:"email"`
	Name                string        `json:"name,omitempty"`
	InteractionHistory  []Interaction `json:"interaction_history,omitempty"`
	InteractionCount    int           `json:"interaction_count"`
	PendingReplies      int           `json:"pending_replies"`
	RelationshipSummary string        `json:"relationship_summary,omitempty"`
	LastInteraction     time.Time     `json:"last_interaction"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// RecordInteraction appends one interaction, keeping the history within
// MaxInteractionHistory by dropping the oldest entries first. The
// counters are recomputed over the retained window, so they never drift
// past it.
func (c *Contact) RecordInteraction(interaction Interaction) {
	c.InteractionHistory = append(c.InteractionHistory, interaction)
	if overflow := len(c.InteractionHistory) - MaxInteractionHistory; overflow > 0 {
		c.InteractionHistory = c.InteractionHistory[overflow:]
	}

	c.InteractionCount = len(c.InteractionHistory)
	c.PendingReplies = 0
	for _, past := range c.InteractionHistory {
		if past.ReplyNeeded {
			c.PendingReplies++
		}
	}
	if interaction.Timestamp.After(c.LastInteraction) {
		c.LastInteraction = interaction.Timestamp
	}
}

// NormalizeEmail canonicalizes an address for use as a contact key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Insight kinds.
const (
	InsightDailyBriefing = "daily_briefing"
	InsightPriorityAlert = "priority_alert"
	InsightStatusUpdate  = "status_update"
)

// Insight read statuses. Status only moves forward: new to viewed.
const (
	StatusNew    = "new"
	StatusViewed = "viewed"
)

// Insight is one synthesized output presented to the user. ViewedAt is
// set once, when the status moves from new to viewed.
type Insight struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Kind      string            `json:"kind"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Priority  string            `json:"priority,omitempty"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ViewedAt  time.Time         `json:"viewed_at,omitzero"`
}

// Goal statuses. Deleting a goal archives it; rows are never removed.
const (
	GoalActive    = "active"
	GoalCompleted = "completed"
	GoalPaused    = "paused"
	GoalArchived  = "archived"
)

// Goal time horizons.
const (
	HorizonShortTerm  = "short_term"
	HorizonMediumTerm = "medium_term"
	HorizonLongTerm   = "long_term"
)

// Goal priority bounds (1 low, 5 high) and the default for new goals.
const (
	GoalPriorityMin     = 1
	GoalPriorityMax     = 5
	GoalPriorityDefault = 3
)

// Goal is a user objective the synthesis pipeline scores activity
// against. TargetDate is optional; its zero value means no deadline.
type Goal struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Horizon     string    `json:"horizon"`
	Status      string    `json:"status"`
	Priority    int       `json:"priority"`
	Progress    int       `json:"progress"`
	TargetDate  time.Time `json:"target_date,omitzero"`
	Milestones  []string  `json:"milestones,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidGoalStatus reports whether status is one of the known values.
func ValidGoalStatus(status string) bool {
	switch status {
	case GoalActive, GoalCompleted, GoalPaused, GoalArchived:
		return true
	default:
		return false
	}
}

// ValidHorizon reports whether horizon is one of the known values.
func ValidHorizon(horizon string) bool {
	switch horizon {
	case HorizonShortTerm, HorizonMediumTerm, HorizonLongTerm:
		return true
	default:
		return false
	}
}

// ValidGoalPriority reports whether priority is on the 1 to 5 scale.
func ValidGoalPriority(priority int) bool {
	return priority >= GoalPriorityMin && priority <= GoalPriorityMax
}

// ValidProgress reports whether progress is a 0 to 100 percentage.
func ValidProgress(progress int) bool {
	return progress >= 0 && progress <= 100
}
