package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mindease/backend/internal/conversation"
	"github.com/mindease/backend/internal/handler/chat"
	"github.com/mindease/backend/internal/handler/stream"
	"github.com/mindease/backend/internal/handler/voice"
	"github.com/mindease/backend/internal/middleware"
	speechService "github.com/mindease/backend/internal/service/speech"
	"github.com/mindease/backend/pkg/utils"
)

// Deps carries everything the router needs to wire handlers.
type Deps struct {
	Store       *conversation.Service
	Controller  *conversation.Controller
	Broker      *conversation.Broker
	SpeechSvc   *speechService.Service
	Metrics     *middleware.Metrics
	RateLimiter *middleware.RateLimiter
	Log         *logrus.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)
	r.Use(deps.Metrics.Instrument)
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Middleware)
	}

	chatHandler := chat.New(deps.Store, deps.Controller, deps.Metrics, deps.Log)
	streamHandler := stream.New(deps.Store, deps.Broker, deps.Log)
	voiceHandler := voice.New(deps.SpeechSvc, deps.Controller, deps.Store, deps.Metrics, deps.Log)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		voiceHandler.RegisterRoutes(api)

		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
				"status": "ok",
				"voice":  deps.SpeechSvc != nil && deps.SpeechSvc.Enabled(),
			})
		})
	})

	r.Handle("/metrics", deps.Metrics.Handler())

	return r
}
