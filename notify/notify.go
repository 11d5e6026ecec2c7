// Package notify carries committed-state-change facts out of the workflow
// engine. Publishers are injected explicitly; the engine never blocks on
// delivery and a missing or failing transport never affects committed state.
package notify

import "context"

// Event names emitted by the workflow core.
const (
	EventStatusChanged     = "dispatch.statusChanged"
	EventFieldEvent        = "field.event"
	EventChatMessageNew    = "chat.messageNew"
	EventAttachmentCreated = "attachment.created"
)

// Publisher fans a fact out to subscribers joined to the dispatch's channel.
// Join-side access control is the transport's concern, not the core's.
type Publisher interface {
	Publish(ctx context.Context, dispatchID, event string, payload map[string]any) error
}

// Nop discards every fact.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, map[string]any) error { return nil }

// Recorder keeps published facts in memory for assertions.
type Recorder struct {
	Facts []Fact
}

// Fact is one recorded publication.
type Fact struct {
	DispatchID string
	Event      string
	Payload    map[string]any
}

func (r *Recorder) Publish(_ context.Context, dispatchID, event string, payload map[string]any) error {
	r.Facts = append(r.Facts, Fact{DispatchID: dispatchID, Event: event, Payload: payload})
	return nil
}

// ByEvent returns the recorded facts with the given event name.
func (r *Recorder) ByEvent(event string) []Fact {
	out := make([]Fact, 0, len(r.Facts))
	for _, f := range r.Facts {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}
