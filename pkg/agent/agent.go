package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mosaic/pkg/message"
)

// Status describes what an agent is currently doing.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
	StatusStopped    Status = "stopped"
)

// Context carries the per-request arguments handed to a processor. Metadata
// is the de-facto argument list for the requested operation.
type Context struct {
	UserID    string
	SessionID string
	RequestID string
	Metadata  map[string]any
	Timestamp time.Time
}

// String returns the metadata value for key when it is a string.
func (c Context) String(key string) string {
	value, _ := c.Metadata[key].(string)
	return value
}

// Result is the outcome of one Process invocation.
type Result struct {
	Success        bool
	Data           map[string]any
	Err            string
	Metadata       map[string]any
	ProcessingTime time.Duration
	Timestamp      time.Time
}

// OK builds a successful result.
func OK(data map[string]any) Result {
	return Result{Success: true, Data: data, Timestamp: time.Now().UTC()}
}

// Fail builds a failed result carrying the error text.
func Fail(err string) Result {
	return Result{Success: false, Err: err, Timestamp: time.Now().UTC()}
}

// Failf builds a failed result from a format string.
func Failf(format string, args ...any) Result {
	return Fail(fmt.Sprintf(format, args...))
}

// Processor is the single-operation agent contract. Concrete agents
// implement Process and wrap themselves in a Runner for message handling.
type Processor interface {
	Name() string
	Process(ctx context.Context, ac Context) Result
}

// EventHandler is optionally implemented by processors that want event
// messages. Events are delivered without the run guard and produce no reply.
type EventHandler interface {
	HandleEvent(ctx context.Context, msg message.Message)
}

// Stats is a point-in-time snapshot of a runner's counters.
type Stats struct {
	Name         string
	Status       Status
	RunCount     int
	ErrorCount   int
	LastRun      time.Time
	Capabilities []string
}

// Runner adapts a Processor to the message protocol: it derives a Context
// from each message, serializes Command/Query processing behind a per-agent
// guard, tracks status and counters, and converts every fault into an error
// reply instead of letting it reach the orchestrator.
type Runner struct {
	proc Processor
	log  *slog.Logger

	// runMu serializes Process invocations; mu only protects counters and
	// status so Stats never blocks behind a long-running cycle.
	runMu sync.Mutex

	mu           sync.Mutex
	status       Status
	capabilities map[string]struct{}
	runCount     int
	errorCount   int
	lastRun      time.Time
}

// NewRunner wraps a processor. The runner starts idle.
func NewRunner(proc Processor, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		proc:         proc,
		log:          log.With("component", "agent."+proc.Name()),
		status:       StatusIdle,
		capabilities: make(map[string]struct{}),
	}
}

// Name returns the wrapped processor's registry name.
func (r *Runner) Name() string {
	return r.proc.Name()
}

// AddCapability advertises a capability string for discovery. Capabilities
// carry no enforcement.
func (r *Runner) AddCapability(capability string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[capability] = struct{}{}
}

// HasCapability reports whether the capability was advertised.
func (r *Runner) HasCapability(capability string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.capabilities[capability]
	return ok
}

// Status returns the runner's current status.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Stop marks the agent stopped. Purely informational; in-flight work
// completes normally.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusStopped
}

// Stats returns a snapshot of the runner's counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	capabilities := make([]string, 0, len(r.capabilities))
	for capability := range r.capabilities {
		capabilities = append(capabilities, capability)
	}

	return Stats{
		Name:         r.proc.Name(),
		Status:       r.status,
		RunCount:     r.runCount,
		ErrorCount:   r.errorCount,
		LastRun:      r.lastRun,
		Capabilities: capabilities,
	}
}

// HandleMessage dispatches one message. Command and Query messages run the
// processor under the guard and return a reply or error reply; Event
// messages are delivered lock-free and return nil. Unsupported kinds are
// logged and ignored.
func (r *Runner) HandleMessage(ctx context.Context, msg message.Message) *message.Message {
	ac := contextFromMessage(msg)

	switch msg.Kind {
	case message.KindCommand, message.KindQuery:
		reply := r.runGuarded(ctx, msg, ac)
		return &reply
	case message.KindEvent:
		if handler, ok := r.proc.(EventHandler); ok {
			handler.HandleEvent(ctx, msg)
		} else {
			r.log.Debug("Ignoring event", "sender", msg.Sender)
		}
		return nil
	default:
		r.log.Warn("Unsupported message kind", "kind", msg.Kind, "sender", msg.Sender)
		return nil
	}
}

func (r *Runner) runGuarded(ctx context.Context, msg message.Message, ac Context) (reply message.Message) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.mu.Lock()
	r.status = StatusProcessing
	r.mu.Unlock()

	start := time.Now()

	defer func() {
		if cause := recover(); cause != nil {
			r.mu.Lock()
			r.status = StatusError
			r.errorCount++
			r.mu.Unlock()

			r.log.Error("Processor panicked", "cause", cause)
			reply = msg.ErrorReply(r.proc.Name(), fmt.Sprintf("%v", cause), nil)
		}
	}()

	result := r.proc.Process(ctx, ac)
	result.ProcessingTime = time.Since(start)

	r.mu.Lock()
	r.status = StatusIdle
	r.runCount++
	r.lastRun = time.Now().UTC()
	r.mu.Unlock()

	payload := map[string]any{
		"success":            result.Success,
		"processing_time_ms": result.ProcessingTime.Milliseconds(),
	}
	if result.Success {
		payload["data"] = result.Data
	} else {
		payload["error"] = result.Err
	}
	if len(result.Metadata) > 0 {
		payload["metadata"] = result.Metadata
	}

	return msg.Reply(r.proc.Name(), payload)
}

func contextFromMessage(msg message.Message) Context {
	metadata := make(map[string]any, len(msg.Payload)+len(msg.Metadata))
	for key, value := range msg.Payload {
		metadata[key] = value
	}
	for key, value := range msg.Metadata {
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	userID, _ := metadata["user_id"].(string)
	sessionID, _ := metadata["session_id"].(string)

	return Context{
		UserID:    userID,
		SessionID: sessionID,
		RequestID: msg.ID,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}
