// Package notify delivers freshly generated insights to users over
// Telegram. The notifier is a regular agent: it answers direct notify
// commands and listens for insight events broadcast by the synthesis
// pipeline.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"mosaic/pkg/agent"
	"mosaic/pkg/agents"
	"mosaic/pkg/config"
	"mosaic/pkg/message"
	"mosaic/pkg/store"
)

// Name is the notifier's orchestrator registry name.
const Name = "notifier"

// maxMessageChars keeps delivered text under the Telegram message limit.
const maxMessageChars = 4000

// sender is the bot surface the notifier uses. *telego.Bot satisfies it.
type sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Notifier pushes insight content to per-user Telegram chats.
type Notifier struct {
	bot     sender
	chatIDs map[string]int64
	log     *slog.Logger
}

// NewTelegram validates the Telegram configuration and constructs a
// notifier backed by a live bot.
func NewTelegram(cfg config.TelegramConfig, log *slog.Logger) (*Notifier, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("notify.telegram.token is required")
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return newNotifier(bot, cfg.ChatIDs, log), nil
}

func newNotifier(bot sender, chatIDs map[string]int64, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		bot:     bot,
		chatIDs: chatIDs,
		log:     log.With("component", "notify.telegram"),
	}
}

func (n *Notifier) Name() string { return Name }

// Process answers direct notify commands: action "notify" sends free
// text to the user's configured chat.
func (n *Notifier) Process(ctx context.Context, ac agent.Context) agent.Result {
	if ac.String("action") != "notify" {
		return agent.Failf("unknown action %q for notifier", ac.String("action"))
	}
	if ac.UserID == "" {
		return agent.Fail("user_id is required")
	}
	text := ac.String("text")
	if strings.TrimSpace(text) == "" {
		return agent.Fail("text is required")
	}

	if err := n.send(ctx, ac.UserID, text); err != nil {
		return agent.Failf("send notification: %v", err)
	}
	return agent.OK(map[string]any{"delivered": true})
}

// HandleEvent delivers insights announced by the synthesis pipeline.
// Users without a configured chat are skipped; a failed send drops
// only that insight.
func (n *Notifier) HandleEvent(ctx context.Context, msg message.Message) {
	event, _ := msg.Payload["event"].(string)
	if event != agents.EventInsightsGenerated {
		return
	}

	userID, _ := msg.Payload["user_id"].(string)
	insights, _ := msg.Payload["insights"].([]store.Insight)
	if userID == "" || len(insights) == 0 {
		return
	}
	if _, ok := n.chatIDs[userID]; !ok {
		n.log.Debug("No telegram chat configured for user", "user_id", userID)
		return
	}

	for _, insight := range insights {
		if err := n.send(ctx, userID, formatInsight(insight)); err != nil {
			n.log.Error("Failed to deliver insight", "user_id", userID, "kind", insight.Kind, "error", err)
			continue
		}
		n.log.Info("Delivered insight", "user_id", userID, "kind", insight.Kind)
	}
}

func (n *Notifier) send(ctx context.Context, userID, text string) error {
	chatID, ok := n.chatIDs[userID]
	if !ok {
		return fmt.Errorf("no telegram chat configured for user %s", userID)
	}

	_, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), truncate(text)))
	return err
}

// formatInsight renders one insight as a Telegram message.
func formatInsight(insight store.Insight) string {
	icon := "💡"
	switch insight.Kind {
	case store.InsightPriorityAlert:
		icon = "🚨"
	case store.InsightDailyBriefing:
		icon = "📋"
	case store.InsightStatusUpdate:
		icon = "ℹ️"
	}
	return fmt.Sprintf("%s %s\n\n%s", icon, insight.Title, insight.Content)
}

func truncate(text string) string {
	if len(text) <= maxMessageChars {
		return text
	}
	return text[:maxMessageChars] + "..."
}
