package conversation

import "testing"

func TestBrokerDeliversToSubscribers(t *testing.T) {
	broker := NewBroker()

	ch, cancel := broker.Subscribe("conv-1")
	defer cancel()

	broker.Publish("conv-1", EventTyping, true)
	broker.Publish("conv-2", EventTyping, true) // other conversation

	event := <-ch
	if event.Type != EventTyping || event.ConversationID != "conv-1" {
		t.Fatalf("unexpected event: %+v", event)
	}

	select {
	case extra := <-ch:
		t.Fatalf("should not receive other conversations' events: %+v", extra)
	default:
	}
}

func TestBrokerCancelStopsDelivery(t *testing.T) {
	broker := NewBroker()

	ch, cancel := broker.Subscribe("conv-1")
	cancel()

	broker.Publish("conv-1", EventMessage, "hello")

	select {
	case event := <-ch:
		t.Fatalf("unexpected event after cancel: %+v", event)
	default:
	}
}

func TestBrokerDropsWhenSubscriberIsSlow(t *testing.T) {
	broker := NewBroker()

	_, cancel := broker.Subscribe("conv-1")
	defer cancel()

	// Fill well past the buffer; Publish must never block.
	for i := 0; i < 100; i++ {
		broker.Publish("conv-1", EventMessage, i)
	}
}
