package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mindease/backend/internal/analysis/mood"
	"github.com/mindease/backend/internal/conversation"
	"github.com/mindease/backend/internal/middleware"
	chatmodel "github.com/mindease/backend/internal/model/chat"
	"github.com/mindease/backend/pkg/utils"
)

// moodHistoryLimit matches the reply service's own history view.
const moodHistoryLimit = 50

// Handler serves the conversation REST surface.
type Handler struct {
	store      *conversation.Service
	controller *conversation.Controller
	metrics    *middleware.Metrics
	log        *logrus.Logger
}

// New creates the chat handler.
func New(store *conversation.Service, controller *conversation.Controller, metrics *middleware.Metrics, log *logrus.Logger) *Handler {
	return &Handler{
		store:      store,
		controller: controller,
		metrics:    metrics,
		log:        log,
	}
}

// RegisterRoutes mounts the conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations", h.handleCreate)
	r.Get("/conversations/{conversationID}", h.handleGet)
	r.Post("/conversations/{conversationID}/messages", h.handleSend)
	r.Get("/conversations/{conversationID}/messages", h.handleTranscript)
	r.Get("/conversations/{conversationID}/moods", h.handleMoods)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.Create(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, conv)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.store.Get(r.Context(), conversationID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"flags":        h.controller.Flags(conversationID),
		"input":        h.controller.Input(conversationID),
	})
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.controller.Send(r.Context(), conversationID, payload.Text, false)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			utils.RespondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.log.WithError(err).Error("send failed")
		utils.RespondError(w, http.StatusInternalServerError, "send failed")
		return
	}

	h.metrics.RecordSend(string(result.Outcome), false)

	// A rejected send is a deliberate silent no-op, not an error.
	if result.Outcome != conversation.OutcomeAccepted {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]interface{}{
		"user": result.UserMessage,
		"bot":  result.BotMessage,
	})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	transcript, err := h.store.Transcript(r.Context(), conversationID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"items": transcript,
	})
}

type moodItem struct {
	chatmodel.Message
	Band mood.Band `json:"band"`
}

func (h *Handler) handleMoods(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	recent, err := h.store.Recent(r.Context(), conversationID, moodHistoryLimit)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	items := make([]moodItem, 0, len(recent))
	for _, m := range recent {
		if m.Mood == nil {
			continue
		}
		items = append(items, moodItem{Message: m, Band: mood.Classify(*m.Mood)})
	}

	transcript, _ := h.store.Transcript(r.Context(), conversationID)
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"items":   items,
		"summary": mood.Summarize(transcript),
	})
}
