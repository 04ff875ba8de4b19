package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"mosaic/pkg/agent"
	"mosaic/pkg/mail"
	"mosaic/pkg/provider"
)

const (
	// MailAgentName is the orchestrator registry name of the mail agent.
	MailAgentName = "mail"

	extractionBatchSize = 5
	extractionMaxTokens = 1500
	gatherMaxRecords    = 50
	bodyPreviewChars    = 500
)

// MailAgent reads the user's mailbox and turns raw items into
// structured Records. It also answers ad-hoc mailbox questions through
// tool-augmented completions.
type MailAgent struct {
	completer provider.Completer
	mailbox   mail.Provider
	log       *slog.Logger
}

func NewMailAgent(completer provider.Completer, mailbox mail.Provider, log *slog.Logger) *MailAgent {
	if log == nil {
		log = slog.Default()
	}
	return &MailAgent{
		completer: completer,
		mailbox:   mailbox,
		log:       log.With("component", "agents.mail"),
	}
}

func (a *MailAgent) Name() string { return MailAgentName }

// Process dispatches on the "task" argument.
func (a *MailAgent) Process(ctx context.Context, ac agent.Context) agent.Result {
	if ac.UserID == "" {
		return agent.Fail("user_id is required for mail operations")
	}

	task := ac.String("task")
	if task == "" {
		task = "summarize_urgent"
	}

	switch task {
	case "summarize_urgent":
		return a.summarizeUrgent(ctx, ac.UserID)
	case "search", "search_records":
		query := ac.String("query")
		if query == "" {
			query = "label:unread"
		}
		return a.searchAndAnalyze(ctx, ac.UserID, query)
	case "daily_summary":
		return a.dailySummary(ctx, ac.UserID)
	case "process_new_records":
		since := time.Now().UTC().Add(-24 * time.Hour)
		if raw := ac.String("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return agent.Failf("invalid since timestamp %q: %v", raw, err)
			}
			since = parsed
		}
		records := a.ProcessNewRecords(ctx, ac.UserID, since)
		return agent.OK(map[string]any{"records": records, "count": len(records)})
	default:
		return agent.Failf("unknown mail task %q", task)
	}
}

const urgentSummaryPrompt = `Scan ALL available mail before summarizing. Identify what truly matters across these categories:

1. MEETINGS & SCHEDULING - meeting invitations and calendar items
2. BUSINESS OPPORTUNITIES - introductions, partnerships, networking
3. PEOPLE REQUIRING RESPONSES - individuals awaiting replies
4. PROJECT UPDATES - work items needing decisions or awareness
5. DEADLINES - time-sensitive items with specific dates

For EACH category, explicitly state what you found or "None found".
Prioritize mail from real people and named projects over promotions, newsletters and notifications.
For each important item include sender, subject and the required action.`

func (a *MailAgent) summarizeUrgent(ctx context.Context, userID string) agent.Result {
	a.log.Info("Summarizing urgent mail", "user_id", userID)

	run, err := a.completer.CompleteWithTools(ctx, urgentSummaryPrompt, a.tools(), 3, map[string]string{"user_id": userID})
	if err != nil {
		return agent.Failf("urgent summary failed: %v", err)
	}

	return agent.OK(map[string]any{
		"summary":    run.FinalText,
		"tool_calls": len(run.Calls),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *MailAgent) searchAndAnalyze(ctx context.Context, userID, query string) agent.Result {
	a.log.Info("Searching mail", "user_id", userID, "query", query)

	prompt := fmt.Sprintf(`Search for mail matching this query: %s
Then analyze the results to:
1. Identify key themes or topics
2. Highlight important information
3. Suggest any required actions`, query)

	run, err := a.completer.CompleteWithTools(ctx, prompt, a.tools(), 3, map[string]string{"user_id": userID})
	if err != nil {
		return agent.Failf("mail search failed: %v", err)
	}

	return agent.OK(map[string]any{
		"query":      query,
		"analysis":   run.FinalText,
		"tool_calls": len(run.Calls),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

const dailySummaryPrompt = `Create a comprehensive daily mail summary:
1. Check for urgent or important mail from the last 24 hours
2. Identify mail requiring responses
3. Summarize key updates and information
4. List any deadlines or time-sensitive items

Format the summary in a clear, actionable way.`

func (a *MailAgent) dailySummary(ctx context.Context, userID string) agent.Result {
	a.log.Info("Creating daily summary", "user_id", userID)

	run, err := a.completer.CompleteWithTools(ctx, dailySummaryPrompt, a.tools(), 5, map[string]string{"user_id": userID})
	if err != nil {
		return agent.Failf("daily summary failed: %v", err)
	}

	return agent.OK(map[string]any{
		"daily_summary": run.FinalText,
		"tool_calls":    len(run.Calls),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// tools exposes mailbox reads to tool-augmented completions. The user
// identity travels in meta, never in model-controlled arguments.
func (a *MailAgent) tools() []provider.Tool {
	return []provider.Tool{
		{
			Name:        "search_mail",
			Description: "Search the mailbox. Supports from:, subject: and label: terms plus plain keywords.",
			Parameters: []provider.Param{
				{Name: "query", Type: "string", Description: "search expression", Required: true},
				{Name: "max_results", Type: "integer", Description: "maximum results, default 10"},
			},
			Run: func(ctx context.Context, args map[string]any, meta map[string]string) (any, error) {
				query, _ := args["query"].(string)
				maxResults := intArg(args, "max_results", 10)
				return a.mailbox.SearchRecords(ctx, meta["user_id"], query, maxResults), nil
			},
		},
		{
			Name:        "mail_details",
			Description: "Fetch the full body of one mail item by id.",
			Parameters: []provider.Param{
				{Name: "id", Type: "string", Description: "mail item id", Required: true},
			},
			Run: func(ctx context.Context, args map[string]any, meta map[string]string) (any, error) {
				id, _ := args["id"].(string)
				detail, ok := a.mailbox.RecordDetails(ctx, meta["user_id"], id)
				if !ok {
					return map[string]any{"error": "not found"}, nil
				}
				return detail, nil
			},
		},
		{
			Name:        "recent_mail",
			Description: "List mail received within the last N hours.",
			Parameters: []provider.Param{
				{Name: "hours", Type: "integer", Description: "lookback window in hours, default 24"},
			},
			Run: func(ctx context.Context, args map[string]any, meta map[string]string) (any, error) {
				hours := intArg(args, "hours", 24)
				since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
				return a.mailbox.RecordsSince(ctx, meta["user_id"], since, gatherMaxRecords), nil
			},
		},
	}
}

func intArg(args map[string]any, key string, fallback int) int {
	switch value := args[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	default:
		return fallback
	}
}

// ProcessNewRecords gathers mail since the watermark and extracts
// structure in batches. Every gathered item yields exactly one Record;
// batches that fail extraction degrade to raw metadata instead of
// disappearing.
func (a *MailAgent) ProcessNewRecords(ctx context.Context, userID string, since time.Time) []Record {
	summaries := a.mailbox.RecordsSince(ctx, userID, since, gatherMaxRecords)
	if len(summaries) == 0 {
		a.log.Info("No new mail to process", "user_id", userID)
		return nil
	}

	a.log.Info("Extracting structure from new mail", "user_id", userID, "count", len(summaries))

	records := make([]Record, 0, len(summaries))
	for start := 0; start < len(summaries); start += extractionBatchSize {
		end := min(start+extractionBatchSize, len(summaries))
		records = append(records, a.extractBatch(ctx, userID, summaries[start:end])...)
	}
	return records
}

// extractBatch runs one batch through the simple-tier model and maps
// the analyses back by id.
func (a *MailAgent) extractBatch(ctx context.Context, userID string, batch []mail.Summary) []Record {
	type batchItem struct {
		ID          string `json:"id"`
		Subject     string `json:"subject"`
		Sender      string `json:"sender"`
		BodyPreview string `json:"body_preview"`
	}

	items := make([]batchItem, 0, len(batch))
	for _, summary := range batch {
		preview := summary.Snippet
		if detail, ok := a.mailbox.RecordDetails(ctx, userID, summary.ID); ok && detail.Body != "" {
			preview = detail.Body
		}
		if len(preview) > bodyPreviewChars {
			preview = preview[:bodyPreviewChars]
		}
		items = append(items, batchItem{
			ID:          summary.ID,
			Subject:     summary.Subject,
			Sender:      summary.Sender,
			BodyPreview: preview,
		})
	}

	encoded, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return a.fallbackBatch(batch, fmt.Sprintf("encode batch: %v", err))
	}

	prompt := fmt.Sprintf(`Analyze the following mail batch. For each item, extract a structured JSON object.

Items:
%s

For each item, provide a JSON object with this EXACT structure:
{
    "id": "item_id",
    "summary": "A concise, one-sentence summary of the core message.",
    "intent": "The sender's primary intent (e.g. 'Question', 'Request for Action', 'Informational', 'Social', 'Advertisement', 'Meeting Invitation', 'Introduction', 'Follow-up').",
    "entities": {
        "people": ["Name1"],
        "companies": ["Company1"],
        "projects": ["Project Alpha"]
    },
    "commitments": {
        "tasks_for_me": ["Specific action item I need to do."],
        "tasks_for_others": ["Action item someone else was asked to do."],
        "deadlines": ["YYYY-MM-DD: Description of deadline."]
    },
    "sentiment": "positive | negative | neutral",
    "is_reply_needed": true,
    "urgency_score": 3
}

IMPORTANT:
- urgency_score: an integer from 1 (low) to 5 (high) based on actual content urgency, not just keywords
- entities: extract ALL mentioned people, companies and projects
- commitments: be specific about WHO needs to do WHAT by WHEN
- is_reply_needed: consider whether the sender expects a response

Return ONLY a valid JSON array of these objects. No additional text.`, encoded)

	response, err := a.completer.Complete(ctx, prompt, provider.TierSimple, extractionMaxTokens)
	if err != nil {
		a.log.Error("Batch extraction failed", "error", err, "batch_size", len(batch))
		return a.fallbackBatch(batch, err.Error())
	}

	analyses, err := parseRecordAnalyses(response)
	if err != nil {
		a.log.Warn("Failed to parse extraction JSON, using fallback records", "error", err)
		return a.fallbackBatch(batch, "unparseable extraction response")
	}

	byID := make(map[string]recordAnalysis, len(analyses))
	for _, analysis := range analyses {
		byID[analysis.ID] = analysis
	}

	records := make([]Record, 0, len(batch))
	for _, summary := range batch {
		analysis, ok := byID[summary.ID]
		if !ok {
			records = append(records, fallbackRecord(summary, "no analysis returned for item"))
			continue
		}
		records = append(records, Record{
			ID:           summary.ID,
			Subject:      summary.Subject,
			Sender:       summary.Sender,
			Date:         summary.Date,
			Summary:      stringOr(analysis.Summary, summary.Snippet),
			Intent:       stringOr(analysis.Intent, "Unknown"),
			Entities:     analysis.Entities,
			Commitments:  analysis.Commitments,
			Sentiment:    stringOr(analysis.Sentiment, "neutral"),
			ReplyNeeded:  analysis.ReplyNeeded,
			UrgencyScore: clampUrgency(analysis.UrgencyScore),
		})
	}
	return records
}

func (a *MailAgent) fallbackBatch(batch []mail.Summary, errText string) []Record {
	records := make([]Record, 0, len(batch))
	for _, summary := range batch {
		records = append(records, fallbackRecord(summary, errText))
	}
	return records
}

// fallbackRecord carries the raw metadata forward when extraction
// fails, so downstream stages still see the item.
func fallbackRecord(summary mail.Summary, errText string) Record {
	return Record{
		ID:              summary.ID,
		Subject:         summary.Subject,
		Sender:          summary.Sender,
		Date:            summary.Date,
		Summary:         summary.Snippet,
		Intent:          "Unknown",
		Sentiment:       "neutral",
		UrgencyScore:    1,
		ProcessingError: errText,
	}
}

func stringOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func clampUrgency(score int) int {
	if score < 1 {
		return 1
	}
	if score > 5 {
		return 5
	}
	return score
}
