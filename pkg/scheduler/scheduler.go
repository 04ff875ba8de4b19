// Package scheduler triggers periodic synthesis cycles for every
// configured user by enqueueing commands on the orchestrator.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"mosaic/pkg/agents"
	"mosaic/pkg/message"
)

// Dispatcher is the subset of the orchestrator the scheduler needs.
type Dispatcher interface {
	Send(msg message.Message)
}

// Scheduler emits one START_SYNTHESIS_CYCLE command per user per tick.
type Scheduler struct {
	dispatcher Dispatcher
	users      []string
	interval   time.Duration
	log        *slog.Logger
}

func New(dispatcher Dispatcher, users []string, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		dispatcher: dispatcher,
		users:      users,
		interval:   interval,
		log:        log.With("component", "scheduler"),
	}
}

// Run fires an immediate round of cycles, then one round per interval
// until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.users) == 0 {
		s.log.Warn("No users configured, scheduler idle")
		<-ctx.Done()
		return
	}

	s.log.Info("Scheduler started", "users", len(s.users), "interval", s.interval)
	defer s.log.Info("Scheduler stopped")

	s.Trigger()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Trigger()
		}
	}
}

// Trigger enqueues one synthesis cycle command per user.
func (s *Scheduler) Trigger() {
	for _, user := range s.users {
		msg := message.New(message.KindCommand, "scheduler", map[string]any{
			"action":       agents.ActionStartCycle,
			"user_id":      user,
			"triggered_by": "scheduler",
		}).To(agents.SynthesisAgentName)

		s.dispatcher.Send(msg)
		s.log.Debug("Scheduled synthesis cycle", "user_id", user, "message_id", msg.ID)
	}
}
