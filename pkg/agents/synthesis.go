package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mosaic/pkg/agent"
	"mosaic/pkg/message"
	"mosaic/pkg/provider"
	"mosaic/pkg/store"
)

const (
	// SynthesisAgentName is the orchestrator registry name of the
	// synthesis agent.
	SynthesisAgentName = "synthesis"

	// ActionStartCycle triggers one full synthesis cycle.
	ActionStartCycle = "START_SYNTHESIS_CYCLE"

	// EventInsightsGenerated is broadcast after a cycle stores insights.
	EventInsightsGenerated = "insights_generated"

	mailSource = "mail"

	// staleContactAfter marks a relationship stale when no interaction
	// happened within the window.
	staleContactAfter = 21 * 24 * time.Hour

	analysisMaxTokens = 1000
	briefingMaxTokens = 1500
	themedRecordsCap  = 50

	// briefingGoalCap bounds how many active goals reach the briefing.
	briefingGoalCap = 3
)

// Publisher broadcasts messages to every registered agent.
type Publisher interface {
	Broadcast(msg message.Message)
}

// SynthesisAgent runs the multi-stage pipeline: gather new activity,
// update the social graph, cluster and prioritize, then compose
// advisor insights and persist them.
type SynthesisAgent struct {
	completer provider.Completer
	store     store.Store
	mailAgent *MailAgent
	goalAgent *GoalAgent
	publisher Publisher
	log       *slog.Logger
}

func NewSynthesisAgent(completer provider.Completer, st store.Store, mailAgent *MailAgent, goalAgent *GoalAgent, log *slog.Logger) *SynthesisAgent {
	if log == nil {
		log = slog.Default()
	}
	return &SynthesisAgent{
		completer: completer,
		store:     st,
		mailAgent: mailAgent,
		goalAgent: goalAgent,
		log:       log.With("component", "agents.synthesis"),
	}
}

func (a *SynthesisAgent) Name() string { return SynthesisAgentName }

// SetPublisher attaches the broadcast channel for insight events. The
// agent works without one; events are simply not emitted.
func (a *SynthesisAgent) SetPublisher(publisher Publisher) {
	a.publisher = publisher
}

func (a *SynthesisAgent) Process(ctx context.Context, ac agent.Context) agent.Result {
	if ac.String("action") != ActionStartCycle {
		return agent.Failf("unknown action %q for synthesis agent", ac.String("action"))
	}
	if ac.UserID == "" {
		return agent.Fail("user_id is required")
	}
	return a.runCycle(ctx, ac.UserID)
}

func (a *SynthesisAgent) runCycle(ctx context.Context, userID string) agent.Result {
	cycleStart := time.Now().UTC()
	a.log.Info("Starting synthesis cycle", "user_id", userID)

	since, ok, err := a.store.LastSync(userID, mailSource)
	if err != nil || !ok {
		if err != nil {
			a.log.Warn("Could not read sync watermark, defaulting to 24h", "error", err)
		}
		since = cycleStart.Add(-24 * time.Hour)
	}

	memory := a.gather(ctx, userID, since)
	a.updateSocialGraph(ctx, userID, memory.Records)

	insights := a.synthesize(ctx, userID, memory)
	stored, dropped := a.storeInsights(userID, insights)

	// The watermark always advances so the same items are not
	// re-gathered next cycle; a degraded cycle is surfaced in the log.
	degraded := degradedCount(memory.Records)
	if err := a.store.SetLastSync(userID, mailSource, cycleStart); err != nil {
		a.log.Error("Failed to advance sync watermark", "user_id", userID, "error", err)
	} else if degraded > 0 || dropped > 0 {
		a.log.Warn("Advancing watermark past a degraded cycle",
			"user_id", userID, "degraded_records", degraded, "dropped_insights", dropped)
	}

	if a.publisher != nil && len(stored) > 0 {
		a.publisher.Broadcast(message.New(message.KindEvent, SynthesisAgentName, map[string]any{
			"event":    EventInsightsGenerated,
			"user_id":  userID,
			"insights": stored,
		}))
	}

	a.log.Info("Synthesis cycle completed",
		"user_id", userID,
		"records_gathered", len(memory.Records),
		"insights_generated", len(stored),
	)

	return agent.OK(map[string]any{
		"insights_generated": len(stored),
		"insights":           stored,
		"records_gathered":   len(memory.Records),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

// gather builds the cycle's working memory.
func (a *SynthesisAgent) gather(ctx context.Context, userID string, since time.Time) WorkingMemory {
	records := a.mailAgent.ProcessNewRecords(ctx, userID, since)
	a.log.Info("Gathered structured records", "user_id", userID, "count", len(records))

	return WorkingMemory{
		Records:   records,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// updateSocialGraph folds the cycle's interactions into the contact
// graph. Failures are logged and never abort the cycle.
func (a *SynthesisAgent) updateSocialGraph(ctx context.Context, userID string, records []Record) {
	if len(records) == 0 {
		return
	}

	bySender := make(map[string][]Record)
	for _, record := range records {
		address := extractAddress(record.Sender)
		if address == "" {
			continue
		}
		bySender[address] = append(bySender[address], record)
	}

	a.log.Info("Updating social graph", "user_id", userID, "contacts", len(bySender))

	for address, senderRecords := range bySender {
		if err := a.updateContact(ctx, userID, address, senderRecords); err != nil {
			a.log.Error("Failed to update contact", "contact", address, "error", err)
		}
	}
}

func (a *SynthesisAgent) updateContact(ctx context.Context, userID, address string, records []Record) error {
	contact, err := a.store.Contact(userID, address)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		contact = store.Contact{
			UserID: userID,
			Email:  address,
			Name:   nameFromAddress(address),
		}
	}

	for _, record := range records {
		contact.RecordInteraction(store.Interaction{
			Timestamp:   parseRecordDate(record.Date),
			Subject:     record.Subject,
			Source:      mailSource,
			RecordID:    record.ID,
			Intent:      record.Intent,
			Sentiment:   record.Sentiment,
			ReplyNeeded: record.ReplyNeeded,
		})
	}

	contact.RelationshipSummary = a.relationshipSummary(ctx, contact)
	contact.UpdatedAt = time.Now().UTC()
	return a.store.PutContact(contact)
}

// relationshipSummary asks the simple tier for a one-line read of the
// relationship. Best effort: on failure the previous summary stands.
func (a *SynthesisAgent) relationshipSummary(ctx context.Context, contact store.Contact) string {
	recent := contact.InteractionHistory
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	if len(recent) == 0 {
		return "No recent interactions"
	}

	var subjects strings.Builder
	for _, interaction := range recent[max(0, len(recent)-5):] {
		fmt.Fprintf(&subjects, "- %s\n", stringOr(interaction.Subject, "No subject"))
	}

	prompt := fmt.Sprintf(`Based on these mail interactions, provide a one-sentence summary of the relationship:
Contact: %s
Number of recent interactions: %d
Recent topics:
%s
Focus on: relationship type (colleague, client, friend), interaction frequency, and main topics discussed.
Keep it under 50 words.`, contact.Email, len(recent), subjects.String())

	summary, err := a.completer.Complete(ctx, prompt, provider.TierSimple, 100)
	if err != nil {
		a.log.Warn("Relationship summary failed", "contact", contact.Email, "error", err)
		if contact.RelationshipSummary != "" {
			return contact.RelationshipSummary
		}
		return "Relationship summary unavailable"
	}
	return strings.TrimSpace(summary)
}

// relationshipRadar surfaces contacts needing attention for the final
// briefing.
type relationshipRadar struct {
	TotalContacts  int
	Stale          []store.Contact
	PendingReplies []store.Contact
}

func (a *SynthesisAgent) relationshipContext(userID string) relationshipRadar {
	contacts, err := a.store.Contacts(userID)
	if err != nil {
		a.log.Warn("Could not load contacts for radar", "user_id", userID, "error", err)
		return relationshipRadar{}
	}

	radar := relationshipRadar{TotalContacts: len(contacts)}
	now := time.Now().UTC()
	for _, contact := range contacts {
		if !contact.LastInteraction.IsZero() && now.Sub(contact.LastInteraction) > staleContactAfter && len(radar.Stale) < 5 {
			radar.Stale = append(radar.Stale, contact)
		}
		if contact.PendingReplies > 0 && len(radar.PendingReplies) < 5 {
			radar.PendingReplies = append(radar.PendingReplies, contact)
		}
	}
	return radar
}

// synthesize runs the analysis stages and always produces at least one
// insight.
func (a *SynthesisAgent) synthesize(ctx context.Context, userID string, memory WorkingMemory) []store.Insight {
	if len(memory.Records) == 0 {
		a.log.Info("No new activity, composing quiet briefing", "user_id", userID)
		return []store.Insight{a.quietBriefing(userID)}
	}

	a.log.Info("Stage 1: thematic analysis", "records", len(memory.Records))
	themes := a.thematicAnalysis(ctx, memory.Records)

	a.log.Info("Stage 2: priority analysis", "themes", len(themes))
	analysis := a.priorityAnalysis(ctx, themes)

	a.log.Info("Stage 3: composing advisor insights")
	return a.advisorInsights(ctx, userID, analysis)
}

// quietBriefing is the guaranteed briefing for cycles with no new
// activity. Composed locally; no model round-trip for an empty day.
func (a *SynthesisAgent) quietBriefing(userID string) store.Insight {
	content := `### 🎯 Top 3 Priorities for Now
None found. No new activity arrived since the last check-in.

### 📡 On Your Radar
None found. Nothing new needs your attention.

### 👥 Connections
None found. No new correspondence to respond to.`

	return store.Insight{
		ID:       uuid.NewString(),
		UserID:   userID,
		Kind:     store.InsightDailyBriefing,
		Title:    "Your Intelligent Daily Brief",
		Content:  content,
		Priority: "normal",
		Status:   store.StatusNew,
		Metadata: map[string]string{
			"urgent_count":    "0",
			"important_count": "0",
			"social_count":    "0",
		},
		CreatedAt: time.Now().UTC(),
	}
}

func (a *SynthesisAgent) thematicAnalysis(ctx context.Context, records []Record) map[string][]Record {
	type themedItem struct {
		Index        int      `json:"index"`
		Subject      string   `json:"subject"`
		Summary      string   `json:"summary"`
		Intent       string   `json:"intent"`
		Entities     Entities `json:"entities"`
		UrgencyScore int      `json:"urgency_score"`
		ReplyNeeded  bool     `json:"is_reply_needed"`
	}

	capped := records
	if len(capped) > themedRecordsCap {
		capped = capped[:themedRecordsCap]
	}

	items := make([]themedItem, 0, len(capped))
	for idx, record := range capped {
		items = append(items, themedItem{
			Index:        idx,
			Subject:      record.Subject,
			Summary:      record.Summary,
			Intent:       record.Intent,
			Entities:     record.Entities,
			UrgencyScore: record.UrgencyScore,
			ReplyNeeded:  record.ReplyNeeded,
		})
	}

	encoded, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return map[string][]Record{"General": records}
	}

	prompt := fmt.Sprintf(`Analyze these mail items and group them into coherent themes. PRIORITIZE work-related themes over marketing.
Use the enriched metadata (intent, entities, urgency) to create meaningful groupings.

Items to analyze:
%s

Theme creation guidelines:
1. WORK PROJECTS: group by specific projects named in entities.projects
2. KEY PEOPLE: group items from important senders
3. ACTION ITEMS: group items with commitments.tasks_for_me
4. MEETINGS & EVENTS: group meeting invitations and calendar items
5. MARKETING: group all urgency_score <= 2 promotional content together

Return a JSON object with this structure:
{
    "themes": {
        "Active Work Projects": {
            "description": "Items about ongoing work projects and deliverables",
            "record_indices": [0, 2]
        },
        "Low Priority & Marketing": {
            "description": "Promotional content",
            "record_indices": [1]
        }
    },
    "uncategorized_indices": []
}

Create themes that separate work from noise. Return ONLY the JSON object.`, encoded)

	response, err := a.completer.Complete(ctx, prompt, provider.TierMedium, analysisMaxTokens)
	if err != nil {
		a.log.Error("Thematic analysis failed, using single theme", "error", err)
		return map[string][]Record{"General": records}
	}
	return parseThemes(response, capped)
}

func (a *SynthesisAgent) priorityAnalysis(ctx context.Context, themes map[string][]Record) Analysis {
	type themedSummary struct {
		Summary      string      `json:"summary"`
		UrgencyScore int         `json:"urgency_score"`
		Commitments  Commitments `json:"commitments"`
		ReplyNeeded  bool        `json:"is_reply_needed"`
		Sender       string      `json:"sender"`
	}

	summaries := make(map[string][]themedSummary, len(themes))
	for name, members := range themes {
		capped := members
		if len(capped) > 10 {
			capped = capped[:10]
		}
		for _, record := range capped {
			summaries[name] = append(summaries[name], themedSummary{
				Summary:      record.Summary,
				UrgencyScore: record.UrgencyScore,
				Commitments:  record.Commitments,
				ReplyNeeded:  record.ReplyNeeded,
				Sender:       record.Sender,
			})
		}
	}

	encoded, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return Analysis{}
	}

	prompt := fmt.Sprintf(`Analyze these themed groups to identify priorities. Focus on work-related items and genuine commitments.
The user needs clear, actionable guidance with low cognitive load.

Themes with enriched data:
%s

Priority extraction rules:
1. URGENT: only items with urgency_score >= 4 AND concrete commitments.tasks_for_me
2. IMPORTANT: work-related items (urgency_score >= 3) with specific actions needed
3. SOCIAL: items with is_reply_needed=true from real senders
4. DEADLINES: extract from commitments.deadlines
5. IGNORE: marketing items (urgency_score <= 2), newsletters, promotional content

Return your analysis as a JSON object:
{
    "priorities": {
        "urgent": ["Specific task with deadline, including who requested it"],
        "important": ["Important item, including project name if mentioned"],
        "deferred": ["Low priority but still work-related"]
    },
    "social_notes": {
        "replies_needed": ["Reply to [Name] about [specific topic]"],
        "relationship_nudges": ["Check in with [Name]"]
    },
    "deadlines": ["YYYY-MM-DD: [Task] - [Description]"],
    "focus_recommendation": "Most critical SINGLE action to take right now"
}

Be specific: use actual names, projects and deadlines from the data.
Return ONLY the JSON object.`, encoded)

	response, err := a.completer.Complete(ctx, prompt, provider.TierMedium, analysisMaxTokens)
	if err != nil {
		a.log.Error("Priority analysis failed, using empty analysis", "error", err)
		return Analysis{}
	}
	return parseAnalysis(response)
}

// advisorInsights composes the final briefing from the pre-computed
// analysis, the relationship radar and the user's goals. The complex
// tier writes the narrative; a model failure degrades to a
// status_update insight so the cycle still emits something.
func (a *SynthesisAgent) advisorInsights(ctx context.Context, userID string, analysis Analysis) []store.Insight {
	goals := a.goalAgent.ActiveGoalsForSynthesis(userID)
	if len(goals) > briefingGoalCap {
		goals = goals[:briefingGoalCap]
	}
	radar := a.relationshipContext(userID)

	goalTitles := make([]string, 0, len(goals))
	for _, goal := range goals {
		goalTitles = append(goalTitles, goal.Title)
	}

	staleNames := make([]string, 0, len(radar.Stale))
	now := time.Now().UTC()
	for _, contact := range radar.Stale {
		days := int(now.Sub(contact.LastInteraction).Hours() / 24)
		staleNames = append(staleNames, fmt.Sprintf("%s (%d days)", stringOr(contact.Name, contact.Email), days))
	}

	prompt := fmt.Sprintf(`You are a wise, empathetic, and strategic advisor. Your goal is to reduce overwhelm and provide clear, actionable guidance. You have already performed a detailed analysis of the user's recent digital activity.

Here is your pre-computed analysis summary:

## Priority Assessment
- Urgent tasks: %s
- Important topics: %s
- Deadlines: %s

## Social Radar
- People to reply to: %s
- Relationship nudges: %s
- Stale relationships (over 3 weeks): %s
- Pending replies: %d people waiting for responses

## Goal Alignment
- Active goals: %s

Based only on the summary above, compose a briefing for the user. Structure your response into three distinct sections in markdown:

### 🎯 Top 3 Priorities for Now
List the three most critical actions. For each, provide a "why" and a suggested "first step" to make it less daunting. If there are none, say "None found".

### 📡 On Your Radar
Briefly mention 2-3 important but not urgent topics, framed as things to keep in mind rather than immediate pressures. If there are none, say "None found".

### 👥 Connections
Highlight key social interactions and suggest one simple, concrete action each. If there are none, say "None found".

Be warm but concise. Reduce cognitive load. Make the complex feel manageable.`,
		joinOr(analysis.Priorities.Urgent, 3),
		joinOr(analysis.Priorities.Important, 3),
		joinOr(analysis.Deadlines, 3),
		joinOr(analysis.SocialNotes.RepliesNeeded, 3),
		joinOr(analysis.SocialNotes.RelationshipNudges, 2),
		joinOr(staleNames, 2),
		len(radar.PendingReplies),
		joinOr(goalTitles, briefingGoalCap),
	)

	narrative, err := a.completer.Complete(ctx, prompt, provider.TierComplex, briefingMaxTokens)
	if err != nil {
		a.log.Error("Advisor briefing failed", "error", err)
		return []store.Insight{{
			ID:        uuid.NewString(),
			UserID:    userID,
			Kind:      store.InsightStatusUpdate,
			Title:     "Synthesis Complete",
			Content:   "Analysis completed but briefing generation encountered an issue.",
			Priority:  "low",
			Status:    store.StatusNew,
			CreatedAt: time.Now().UTC(),
		}}
	}

	briefingPriority := "normal"
	if len(analysis.Priorities.Urgent) > 0 {
		briefingPriority = "high"
	}

	insights := []store.Insight{{
		ID:       uuid.NewString(),
		UserID:   userID,
		Kind:     store.InsightDailyBriefing,
		Title:    "Your Intelligent Daily Brief",
		Content:  narrative,
		Priority: briefingPriority,
		Status:   store.StatusNew,
		Metadata: map[string]string{
			"urgent_count":        strconv.Itoa(len(analysis.Priorities.Urgent)),
			"important_count":     strconv.Itoa(len(analysis.Priorities.Important)),
			"social_count":        strconv.Itoa(len(analysis.SocialNotes.RepliesNeeded) + len(analysis.SocialNotes.RelationshipNudges)),
			"active_goals":        strconv.Itoa(len(goals)),
			"stale_relationships": strconv.Itoa(len(radar.Stale)),
			"pending_replies":     strconv.Itoa(len(radar.PendingReplies)),
		},
		CreatedAt: time.Now().UTC(),
	}}

	if len(analysis.Priorities.Urgent) > 0 {
		urgent := analysis.Priorities.Urgent
		if len(urgent) > 5 {
			urgent = urgent[:5]
		}
		insights = append(insights, store.Insight{
			ID:        uuid.NewString(),
			UserID:    userID,
			Kind:      store.InsightPriorityAlert,
			Title:     "Urgent Items Requiring Attention",
			Content:   strings.Join(urgent, "\n"),
			Priority:  "high",
			Status:    store.StatusNew,
			CreatedAt: time.Now().UTC(),
		})
	}

	return insights
}

// storeInsights persists insights one by one. A write failure drops
// only the failing insight.
func (a *SynthesisAgent) storeInsights(userID string, insights []store.Insight) (stored []store.Insight, dropped int) {
	for _, insight := range insights {
		insight.UserID = userID
		if err := a.store.AddInsight(insight); err != nil {
			a.log.Error("Failed to store insight", "kind", insight.Kind, "error", err)
			dropped++
			continue
		}
		a.log.Info("Stored insight", "kind", insight.Kind, "user_id", userID)
		stored = append(stored, insight)
	}
	return stored, dropped
}

func degradedCount(records []Record) int {
	count := 0
	for _, record := range records {
		if record.Degraded() {
			count++
		}
	}
	return count
}

func joinOr(items []string, limit int) string {
	if len(items) == 0 {
		return "None"
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return strings.Join(items, ", ")
}

func parseRecordDate(raw string) time.Time {
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}
