package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mindease/backend/internal/conversation"
	"github.com/mindease/backend/pkg/utils"
)

// Handler streams conversation events (typing indicator, appended
// messages, mood updates) over Server-Sent Events.
type Handler struct {
	store  *conversation.Service
	broker *conversation.Broker
	log    *logrus.Logger
}

// New creates the stream handler.
func New(store *conversation.Service, broker *conversation.Broker, log *logrus.Logger) *Handler {
	return &Handler{store: store, broker: broker, log: log}
}

// RegisterRoutes mounts the SSE route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations/{conversationID}/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if _, err := h.store.Get(r.Context(), conversationID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	events, cancel := h.broker.Subscribe(conversationID)
	defer cancel()

	ctx := r.Context()
	h.log.WithField("conversation_id", conversationID).Debug("event stream opened")

	utils.SendSSEEvent(w, flusher, "status", map[string]string{"state": "connected"})

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.WithField("conversation_id", conversationID).Debug("event stream closed")
			return
		case <-heartbeat.C:
			utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"time": time.Now().UTC().Format(time.RFC3339),
			})
		case event := <-events:
			utils.SendSSEEvent(w, flusher, event.Type, event)
		}
	}
}
