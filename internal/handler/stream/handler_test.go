package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mindease/backend/internal/conversation"
)

func newTestServer(t *testing.T) (*httptest.Server, *conversation.Service, *conversation.Broker) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := conversation.NewService()
	broker := conversation.NewBroker()

	h := New(store, broker, log)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store, broker
}

func TestEventsUnknownConversation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/conversations/missing/events")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestEventsForwardsTypingIndicator(t *testing.T) {
	srv, store, broker := newTestServer(t)

	conv, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	resp, err := http.Get(srv.URL + "/conversations/" + conv.ID + "/events")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)

	readEvent := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}

	if event := readEvent(); event != "status" {
		t.Fatalf("expected status event first, got %q", event)
	}

	broker.Publish(conv.ID, conversation.EventTyping, true)

	if event := readEvent(); event != conversation.EventTyping {
		t.Errorf("expected typing event, got %q", event)
	}
}
