package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mindease/backend/internal/conversation"
	"github.com/mindease/backend/internal/middleware"
	"github.com/mindease/backend/internal/service/speech"
	"github.com/mindease/backend/pkg/utils"
)

// Handler owns the voice capture websocket: buffered audio in, final
// transcript out, the transcript fed straight into the controller as a
// voice-origin send, and spoken playback of the reply back down the
// same connection.
type Handler struct {
	speechSvc  *speech.Service
	controller *conversation.Controller
	store      *conversation.Service
	metrics    *middleware.Metrics
	log        *logrus.Logger
	upgrader   websocket.Upgrader
}

// New creates the voice handler.
func New(speechSvc *speech.Service, controller *conversation.Controller, store *conversation.Service, metrics *middleware.Metrics, log *logrus.Logger) *Handler {
	return &Handler{
		speechSvc:  speechSvc,
		controller: controller,
		store:      store,
		metrics:    metrics,
		log:        log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the capture route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations/{conversationID}/voice", h.handleWebSocket)
}

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type audioFrame struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	IsFinal   bool   `json:"isFinal"`
}

type configFrame struct {
	VoiceReplies *bool `json:"voiceReplies,omitempty"`
}

type outgoingFrame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn serializes writes; playback is synthesized off the read loop.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

type captureState struct {
	conversationID string
	buffer         bytes.Buffer
	format         string
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if _, err := h.store.Get(r.Context(), conversationID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	// Capability-missing is an explicit, visible failure; the widget
	// shows it as a blocking alert.
	if h.speechSvc == nil || !h.speechSvc.Enabled() {
		utils.RespondError(w, http.StatusNotImplemented, "voice capture unavailable")
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("voice websocket upgrade failed")
		return
	}
	defer raw.Close()

	h.metrics.VoiceSessionOpened()
	defer h.metrics.VoiceSessionClosed()

	conn := &wsConn{conn: raw}
	state := &captureState{conversationID: conversationID}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Whatever ends the connection, capture is no longer in progress.
	defer h.controller.SetListening(conversationID, false)

	raw.SetReadDeadline(time.Now().Add(60 * time.Second))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	go h.pingLoop(ctx, conn)

	h.send(conn, "connected", map[string]interface{}{
		"conversationId": conversationID,
		"locale":         h.speechSvc.Locale(),
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var frame inboundFrame
		if err := raw.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Debug("voice websocket read error")
			}
			return
		}
		raw.SetReadDeadline(time.Now().Add(60 * time.Second))

		h.handleFrame(ctx, conn, state, &frame)
	}
}

func (h *Handler) handleFrame(ctx context.Context, conn *wsConn, state *captureState, frame *inboundFrame) {
	switch frame.Type {
	case "start":
		state.buffer.Reset()
		h.controller.SetListening(state.conversationID, true)
		h.send(conn, "listening", true)
	case "audio":
		h.handleAudio(ctx, conn, state, frame.Data)
	case "stop":
		// End of capture resets listening unconditionally.
		h.controller.SetListening(state.conversationID, false)
		h.send(conn, "listening", false)
	case "config":
		h.handleConfig(conn, state, frame.Data)
	default:
		h.sendError(conn, "unsupported frame type: "+frame.Type)
	}
}

func (h *Handler) handleAudio(ctx context.Context, conn *wsConn, state *captureState, raw json.RawMessage) {
	var audio audioFrame
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	if len(audio.AudioData) > 0 {
		state.buffer.Write(audio.AudioData)
	}
	if audio.Format != "" {
		state.format = audio.Format
	}

	if audio.IsFinal {
		h.finishCapture(ctx, conn, state)
	}
}

// finishCapture transcribes the buffered utterance and feeds the
// result into the controller as the voice input surface does: set the
// draft, then send immediately with voice origin.
func (h *Handler) finishCapture(ctx context.Context, conn *wsConn, state *captureState) {
	// Listening ends here no matter how recognition goes.
	defer func() {
		h.controller.SetListening(state.conversationID, false)
		h.send(conn, "listening", false)
	}()

	audioBytes := state.buffer.Bytes()
	state.buffer.Reset()
	if len(audioBytes) == 0 {
		return
	}

	transcript, err := h.speechSvc.Transcribe(ctx, state.conversationID, audioBytes, state.format)
	if err != nil {
		h.log.WithError(err).WithField("conversation_id", state.conversationID).Error("recognition failed")
		h.sendError(conn, "recognition failed")
		return
	}

	h.send(conn, "transcript", map[string]interface{}{
		"text":       transcript.Text,
		"confidence": transcript.Confidence,
		"isFinal":    true,
	})

	if transcript.Text == "" {
		return
	}

	h.controller.SetInput(state.conversationID, transcript.Text)

	result, err := h.controller.Send(ctx, state.conversationID, transcript.Text, true)
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	h.metrics.RecordSend(string(result.Outcome), true)

	if result.Outcome != conversation.OutcomeAccepted {
		return
	}

	h.send(conn, "message", result.UserMessage)
	h.send(conn, "message", result.BotMessage)

	if result.SpeakText != "" {
		// Fire-and-forget playback; nothing tracks completion.
		go h.sendPlayback(context.WithoutCancel(ctx), conn, state.conversationID, result.SpeakText)
	}
}

func (h *Handler) sendPlayback(ctx context.Context, conn *wsConn, conversationID, text string) {
	audio, err := h.speechSvc.Synthesize(ctx, conversationID, text)
	if err != nil {
		h.log.WithError(err).WithField("conversation_id", conversationID).Error("synthesis failed")
		h.send(conn, "audio", map[string]interface{}{"error": "synthesis failed"})
		return
	}
	if len(audio.Data) == 0 {
		return
	}

	h.send(conn, "audio", map[string]interface{}{
		"audioData": base64.StdEncoding.EncodeToString(audio.Data),
		"format":    audio.Format,
		"isFinal":   true,
	})
}

func (h *Handler) handleConfig(conn *wsConn, state *captureState, raw json.RawMessage) {
	var cfg configFrame
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}

	if cfg.VoiceReplies != nil {
		h.controller.SetVoiceEnabled(state.conversationID, *cfg.VoiceReplies)
	}

	h.send(conn, "config", map[string]interface{}{
		"flags": h.controller.Flags(state.conversationID),
	})
}

func (h *Handler) send(conn *wsConn, frameType string, data interface{}) {
	frame := outgoingFrame{
		Type:      frameType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(frame); err != nil {
		h.log.WithError(err).Debug("voice websocket write failed")
	}
}

func (h *Handler) sendError(conn *wsConn, message string) {
	h.send(conn, "error", map[string]string{"message": message})
}

func (h *Handler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
