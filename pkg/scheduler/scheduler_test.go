package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"mosaic/pkg/agents"
	"mosaic/pkg/message"
)

type captureDispatcher struct {
	mu   sync.Mutex
	msgs []message.Message
}

func (d *captureDispatcher) Send(msg message.Message) {
	d.mu.Lock()
	d.msgs = append(d.msgs, msg)
	d.mu.Unlock()
}

func (d *captureDispatcher) messages() []message.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]message.Message, len(d.msgs))
	copy(out, d.msgs)
	return out
}

func TestTriggerSendsOneCommandPerUser(t *testing.T) {
	dispatcher := &captureDispatcher{}
	s := New(dispatcher, []string{"u1", "u2"}, time.Minute, nil)

	s.Trigger()

	msgs := dispatcher.messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	seen := map[string]bool{}
	for _, msg := range msgs {
		if msg.Recipient != agents.SynthesisAgentName {
			t.Fatalf("recipient = %q", msg.Recipient)
		}
		if msg.Kind != message.KindCommand {
			t.Fatalf("kind = %q", msg.Kind)
		}
		if msg.Payload["action"] != agents.ActionStartCycle {
			t.Fatalf("action = %v", msg.Payload["action"])
		}
		if msg.Payload["triggered_by"] != "scheduler" {
			t.Fatalf("triggered_by = %v", msg.Payload["triggered_by"])
		}
		seen[msg.Payload["user_id"].(string)] = true
	}
	if !seen["u1"] || !seen["u2"] {
		t.Fatalf("users covered = %v", seen)
	}
}

func TestRunFiresImmediately(t *testing.T) {
	dispatcher := &captureDispatcher{}
	s := New(dispatcher, []string{"u1"}, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for len(dispatcher.messages()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no immediate trigger within a second")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRunWithoutUsersIdles(t *testing.T) {
	dispatcher := &captureDispatcher{}
	s := New(dispatcher, nil, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if len(dispatcher.messages()) != 0 {
		t.Fatalf("messages = %d, want 0", len(dispatcher.messages()))
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	s := New(&captureDispatcher{}, []string{"u1"}, 0, nil)
	if s.interval != 15*time.Minute {
		t.Fatalf("interval = %v", s.interval)
	}
}
