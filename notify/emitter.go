package notify

import (
	"context"
	"time"

	"dispatchflow/logger"
)

// Emitter wraps a Publisher with the post-commit delivery contract: facts are
// emitted best-effort after the transaction has committed, publish errors are
// logged and swallowed, and a slow transport cannot stall the caller.
type Emitter struct {
	pub     Publisher
	log     logger.Logger
	timeout time.Duration
}

// NewEmitter builds an Emitter. A nil publisher is replaced with Nop so the
// engine can run without any transport configured.
func NewEmitter(pub Publisher, log logger.Logger) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Emitter{pub: pub, log: log, timeout: 5 * time.Second}
}

// Emit publishes one fact. Never returns an error; delivery failure must not
// roll back or retry the underlying state change.
func (e *Emitter) Emit(dispatchID, event string, payload map[string]any) {
	// Detached from the request context: the command already committed.
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := e.pub.Publish(ctx, dispatchID, event, payload); err != nil {
		e.log.Warnf("notify: drop %s for dispatch %s: %v", event, dispatchID, err)
	}
}

// StatusChanged emits a dispatch.statusChanged fact when the externally
// observable status actually changed. No-op transitions emit nothing.
func (e *Emitter) StatusChanged(dispatchID, from, to string) {
	if from == to {
		return
	}
	e.Emit(dispatchID, EventStatusChanged, map[string]any{
		"dispatchId": dispatchID,
		"from":       from,
		"to":         to,
	})
}
