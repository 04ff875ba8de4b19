package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"mosaic/pkg/message"
)

type countingProcessor struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    int
	delay    time.Duration
	result   Result
}

func (p *countingProcessor) Name() string { return "counting" }

func (p *countingProcessor) Process(ctx context.Context, ac Context) Result {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxSeen {
		p.maxSeen = p.inFlight
	}
	p.calls++
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()

	return p.result
}

type panickyProcessor struct{}

func (panickyProcessor) Name() string { return "panicky" }

func (panickyProcessor) Process(ctx context.Context, ac Context) Result {
	panic("pipeline exploded")
}

type recordingEventProcessor struct {
	mu     sync.Mutex
	events []message.Message
}

func (p *recordingEventProcessor) Name() string { return "events" }

func (p *recordingEventProcessor) Process(ctx context.Context, ac Context) Result {
	return OK(nil)
}

func (p *recordingEventProcessor) HandleEvent(ctx context.Context, msg message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
}

func TestCommandProducesReply(t *testing.T) {
	proc := &countingProcessor{result: OK(map[string]any{"answer": 42})}
	runner := NewRunner(proc, nil)

	msg := message.New(message.KindCommand, "tester", map[string]any{"user_id": "u1"}).To("counting")
	reply := runner.HandleMessage(context.Background(), msg)

	if reply == nil {
		t.Fatal("expected a reply")
	}
	if reply.Kind != message.KindResponse {
		t.Fatalf("kind = %q, want %q", reply.Kind, message.KindResponse)
	}
	if !reply.IsResponseTo(msg.ID) {
		t.Fatalf("reply_to = %q, want %q", reply.ReplyTo, msg.ID)
	}
	if success, _ := reply.Payload["success"].(bool); !success {
		t.Fatalf("payload = %#v, want success", reply.Payload)
	}

	stats := runner.Stats()
	if stats.RunCount != 1 || stats.ErrorCount != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Status != StatusIdle {
		t.Fatalf("status = %q, want idle", stats.Status)
	}
}

func TestFailedResultStillReplies(t *testing.T) {
	proc := &countingProcessor{result: Fail("no user_id")}
	runner := NewRunner(proc, nil)

	msg := message.New(message.KindQuery, "tester", nil).To("counting")
	reply := runner.HandleMessage(context.Background(), msg)

	if reply == nil {
		t.Fatal("expected a reply")
	}
	if reply.IsError() {
		t.Fatal("failed result should be a normal reply, not an error reply")
	}
	if success, _ := reply.Payload["success"].(bool); success {
		t.Fatal("expected success=false in payload")
	}
	if reply.Payload["error"] != "no user_id" {
		t.Fatalf("payload error = %v", reply.Payload["error"])
	}
}

func TestPanicBecomesErrorReply(t *testing.T) {
	runner := NewRunner(panickyProcessor{}, nil)

	msg := message.New(message.KindCommand, "tester", nil).To("panicky")
	reply := runner.HandleMessage(context.Background(), msg)

	if reply == nil {
		t.Fatal("expected an error reply")
	}
	if !reply.IsError() {
		t.Fatalf("kind = %q, want error", reply.Kind)
	}
	if reply.Payload["error"] != "pipeline exploded" {
		t.Fatalf("payload error = %v", reply.Payload["error"])
	}

	stats := runner.Stats()
	if stats.ErrorCount != 1 {
		t.Fatalf("error count = %d, want 1", stats.ErrorCount)
	}
	if stats.Status != StatusError {
		t.Fatalf("status = %q, want error", stats.Status)
	}
}

func TestCommandsAreMutuallyExclusive(t *testing.T) {
	proc := &countingProcessor{delay: 20 * time.Millisecond, result: OK(nil)}
	runner := NewRunner(proc, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := message.New(message.KindCommand, "tester", nil).To("counting")
			runner.HandleMessage(context.Background(), msg)
		}()
	}
	wg.Wait()

	if proc.maxSeen != 1 {
		t.Fatalf("max concurrent Process calls = %d, want 1", proc.maxSeen)
	}
	if proc.calls != 8 {
		t.Fatalf("calls = %d, want 8", proc.calls)
	}
}

func TestEventsBypassGuardAndReturnNothing(t *testing.T) {
	proc := &recordingEventProcessor{}
	runner := NewRunner(proc, nil)

	evt := message.New(message.KindEvent, "tester", map[string]any{"what": "sync_done"})
	if reply := runner.HandleMessage(context.Background(), evt); reply != nil {
		t.Fatalf("event produced a reply: %#v", reply)
	}
	if len(proc.events) != 1 {
		t.Fatalf("events delivered = %d, want 1", len(proc.events))
	}

	// Processors without an event handler just log and drop the event.
	plain := NewRunner(&countingProcessor{result: OK(nil)}, nil)
	if reply := plain.HandleMessage(context.Background(), evt); reply != nil {
		t.Fatal("expected nil reply for unhandled event")
	}
}

func TestCapabilities(t *testing.T) {
	runner := NewRunner(&countingProcessor{result: OK(nil)}, nil)
	runner.AddCapability("search_records")

	if !runner.HasCapability("search_records") {
		t.Fatal("expected advertised capability")
	}
	if runner.HasCapability("teleport") {
		t.Fatal("unexpected capability")
	}
}

func TestContextFromMessage(t *testing.T) {
	msg := message.New(message.KindCommand, "tester", map[string]any{
		"action":  "START_SYNTHESIS_CYCLE",
		"user_id": "u1",
	})
	msg = msg.WithMetadata(map[string]string{"session_id": "s1", "user_id": "shadowed"})

	ac := contextFromMessage(msg)
	if ac.UserID != "u1" {
		t.Fatalf("user id = %q, want payload value to win", ac.UserID)
	}
	if ac.SessionID != "s1" {
		t.Fatalf("session id = %q", ac.SessionID)
	}
	if ac.RequestID != msg.ID {
		t.Fatalf("request id = %q, want %q", ac.RequestID, msg.ID)
	}
	if ac.String("action") != "START_SYNTHESIS_CYCLE" {
		t.Fatalf("action = %q", ac.String("action"))
	}
}
