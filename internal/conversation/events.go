package conversation

import (
	"sync"
	"time"
)

// Event types published to stream subscribers.
const (
	EventTyping    = "typing"
	EventListening = "listening"
	EventMessage   = "message"
	EventMood      = "mood"
)

// Event is one item on a conversation's live feed.
type Event struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversationId"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}

// Broker fans conversation events out to stream subscribers. Slow
// subscribers drop events rather than block the controller.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for one conversation. The returned
// cancel func must be called when the listener goes away.
func (b *Broker) Subscribe(conversationID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[chan Event]struct{})
	}
	b.subs[conversationID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[conversationID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, conversationID)
			}
		}
		b.mu.Unlock()
	}

	return ch, cancel
}

// Publish delivers an event to every subscriber of the conversation.
func (b *Broker) Publish(conversationID, eventType string, data interface{}) {
	event := Event{
		Type:           eventType,
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      time.Now().Unix(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[conversationID] {
		select {
		case ch <- event:
		default:
		}
	}
}
