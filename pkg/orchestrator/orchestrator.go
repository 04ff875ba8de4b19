package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mosaic/pkg/agent"
	"mosaic/pkg/message"
)

// Name is the sender used on orchestrator-authored error replies.
const Name = "orchestrator"

// Stats is a point-in-time snapshot of orchestrator counters.
type Stats struct {
	AgentsRegistered  int  `json:"agents_registered"`
	MessagesQueued    int  `json:"messages_queued"`
	MessagesProcessed int  `json:"messages_processed"`
	Errors            int  `json:"errors"`
	Running           bool `json:"running"`
}

// Orchestrator owns the agent registry and the message queue, and runs the
// dispatch loop. Enqueueing is safe from any goroutine; dispatch happens on
// a single loop per instance.
type Orchestrator struct {
	log *slog.Logger

	mu        sync.Mutex
	agents    map[string]*agent.Runner
	queue     []message.Message
	pending   map[string]chan message.Message
	running   bool
	processed int
	errors    int
}

// New constructs an empty orchestrator.
func New(log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		log:     log.With("component", "orchestrator"),
		agents:  make(map[string]*agent.Runner),
		pending: make(map[string]chan message.Message),
	}
}

// Register adds a runner under its processor name. Re-registration replaces
// the existing entry with a warning, never an error.
func (o *Orchestrator) Register(runner *agent.Runner) {
	name := runner.Name()

	o.mu.Lock()
	_, replaced := o.agents[name]
	o.agents[name] = runner
	o.mu.Unlock()

	if replaced {
		o.log.Warn("Agent already registered, replacing", "agent", name)
	} else {
		o.log.Info("Registered agent", "agent", name)
	}
}

// Unregister removes a runner by name.
func (o *Orchestrator) Unregister(name string) {
	o.mu.Lock()
	_, ok := o.agents[name]
	delete(o.agents, name)
	o.mu.Unlock()

	if ok {
		o.log.Info("Unregistered agent", "agent", name)
	} else {
		o.log.Warn("Attempted to unregister unknown agent", "agent", name)
	}
}

// Agent looks up a registered runner by name.
func (o *Orchestrator) Agent(name string) (*agent.Runner, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	runner, ok := o.agents[name]
	return runner, ok
}

// AgentNames lists the registered agent names.
func (o *Orchestrator) AgentNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	names := make([]string, 0, len(o.agents))
	for name := range o.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send enqueues a message. The queue keeps a total order: priority
// descending, then enqueue time ascending; the stable sort preserves
// arrival order for equal keys.
func (o *Orchestrator) Send(msg message.Message) {
	o.mu.Lock()
	o.queue = append(o.queue, msg)
	sort.SliceStable(o.queue, func(i, j int) bool {
		ri, rj := o.queue[i].Priority.Rank(), o.queue[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return o.queue[i].Timestamp.Before(o.queue[j].Timestamp)
	})
	o.mu.Unlock()

	o.log.Debug("Queued message", "id", msg.ID, "kind", msg.Kind, "recipient", msg.Recipient)
}

// Broadcast enqueues a message with its recipient forced absent.
func (o *Orchestrator) Broadcast(msg message.Message) {
	msg.Recipient = ""
	o.Send(msg)
	o.log.Info("Broadcasting message", "sender", msg.Sender, "kind", msg.Kind)
}

// ProcessMessage dispatches a single message. Broadcasts go to every agent
// except the sender with replies discarded; addressed messages return the
// target's reply, or an orchestrator-authored error reply for unknown
// recipients. Dispatch faults are converted to error replies and counted,
// never re-raised.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg message.Message) (reply *message.Message) {
	defer func() {
		if cause := recover(); cause != nil {
			o.mu.Lock()
			o.errors++
			o.mu.Unlock()

			o.log.Error("Dispatch fault", "id", msg.ID, "cause", cause)
			errReply := msg.ErrorReply(Name, fmt.Sprintf("%v", cause), nil)
			reply = &errReply
		}
	}()

	if msg.IsBroadcast() {
		for _, runner := range o.snapshotAgents() {
			if runner.Name() == msg.Sender {
				continue
			}
			// Broadcast is fire-and-forget; per-agent replies are discarded.
			runner.HandleMessage(ctx, msg)
		}
		return nil
	}

	runner, ok := o.Agent(msg.Recipient)
	if !ok {
		o.log.Error("Unknown recipient", "recipient", msg.Recipient, "id", msg.ID)
		errReply := msg.ErrorReply(Name, fmt.Sprintf("unknown agent: %s", msg.Recipient), nil)
		return &errReply
	}

	response := runner.HandleMessage(ctx, msg)

	o.mu.Lock()
	o.processed++
	o.mu.Unlock()

	return response
}

// SendAndWait enqueues a message and waits for its reply. If the dispatch
// loop is not running the queue is drained inline; otherwise the reply is
// delivered by the loop. On timeout it returns ok=false and logs the miss;
// the pending slot is removed on every exit so a late reply cannot satisfy
// a finished waiter.
func (o *Orchestrator) SendAndWait(ctx context.Context, msg message.Message, timeout time.Duration) (message.Message, bool) {
	waiter := make(chan message.Message, 1)

	o.mu.Lock()
	o.pending[msg.ID] = waiter
	loopRunning := o.running
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.pending, msg.ID)
		o.mu.Unlock()
	}()

	o.Send(msg)

	if !loopRunning {
		o.drainQueue(ctx)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-waiter:
		return reply, true
	case <-timer.C:
		o.log.Warn("Timeout waiting for response", "id", msg.ID, "timeout", timeout)
		return message.Message{}, false
	case <-ctx.Done():
		return message.Message{}, false
	}
}

// Run drains the queue, sleeps for interval, and repeats until Stop is
// called or the context is cancelled. In-flight agent calls complete; only
// the sleep is interruptible.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("process interval must be greater than zero")
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	o.running = true
	o.mu.Unlock()

	o.log.Info("Orchestrator started", "interval", interval)
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		o.log.Info("Orchestrator stopped")
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		o.drainQueue(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if !o.isRunning() {
			return nil
		}
	}
}

// Stop requests cooperative loop termination; observed between drain cycles.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// Stats returns point-in-time counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		AgentsRegistered:  len(o.agents),
		MessagesQueued:    len(o.queue),
		MessagesProcessed: o.processed,
		Errors:            o.errors,
		Running:           o.running,
	}
}

// drainQueue processes every message currently queued, oldest-highest-
// priority first. Produced replies either satisfy a pending waiter or are
// re-enqueued for normal delivery.
func (o *Orchestrator) drainQueue(ctx context.Context) {
	for {
		if ctx != nil && ctx.Err() != nil {
			return
		}

		msg, ok := o.popQueue()
		if !ok {
			return
		}

		response := o.ProcessMessage(ctx, msg)
		if response == nil {
			continue
		}

		if o.deliverPending(*response) {
			continue
		}
		o.Send(*response)
	}
}

func (o *Orchestrator) popQueue() (message.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.queue) == 0 {
		return message.Message{}, false
	}
	msg := o.queue[0]
	o.queue = o.queue[1:]
	return msg, true
}

func (o *Orchestrator) deliverPending(reply message.Message) bool {
	if reply.ReplyTo == "" {
		return false
	}

	o.mu.Lock()
	waiter, ok := o.pending[reply.ReplyTo]
	o.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case waiter <- reply:
	default:
		// Waiter already satisfied; drop the duplicate.
	}
	return true
}

func (o *Orchestrator) snapshotAgents() []*agent.Runner {
	o.mu.Lock()
	defer o.mu.Unlock()

	runners := make([]*agent.Runner, 0, len(o.agents))
	for _, runner := range o.agents {
		runners = append(runners, runner)
	}
	return runners
}

func (o *Orchestrator) isRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}
