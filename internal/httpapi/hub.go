package httpapi

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/opencode-ai/chatbridge/internal/agentcli"
	"github.com/opencode-ai/chatbridge/internal/model"
)

// Hub fans out one session's decoded agent events to any number of SSE
// subscribers, one topic per session ID, on top of watermill's in-process
// GoChannel pub/sub — the same infrastructure the teacher's internal/event
// bus wraps for its own session/message event stream, put to its intended
// use here instead of sitting unexercised behind a PubSub() escape hatch.
// internal/bridge.Manager.SetEventSink(hub.Publish) is the only producer;
// sessionEvents is the only consumer.
type Hub struct {
	pubsub *gochannel.GoChannel
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 32},
			watermill.NopLogger{},
		),
	}
}

// Publish implements the func(model.SessionID, agentcli.Event) shape
// bridge.Manager.SetEventSink expects. A session with no current
// subscriber is a no-op: GoChannel only fans out to subscribers already
// listening on the topic.
func (h *Hub) Publish(id model.SessionID, ev agentcli.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = h.pubsub.Publish(string(id), message.NewMessage(watermill.NewUUID(), payload))
}

// Subscribe registers a new listener for id's events. The returned cancel
// func must be called once the caller is done to release the subscription.
func (h *Hub) Subscribe(id model.SessionID) (<-chan agentcli.Event, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := h.pubsub.Subscribe(ctx, string(id))
	if err != nil {
		cancel()
		closed := make(chan agentcli.Event)
		close(closed)
		return closed, func() {}
	}

	out := make(chan agentcli.Event, 32)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev agentcli.Event
			if err := json.Unmarshal(msg.Payload, &ev); err == nil {
				select {
				case out <- ev:
				default:
					// Slow subscriber: drop rather than block the watermill
					// delivery goroutine.
				}
			}
			msg.Ack()
		}
	}()
	return out, cancel
}

// Close shuts down the underlying pub/sub, unblocking every live Subscribe.
func (h *Hub) Close() error {
	return h.pubsub.Close()
}
