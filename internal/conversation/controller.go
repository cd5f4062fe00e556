package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/mindease/backend/internal/analysis/mood"
	"github.com/mindease/backend/internal/config"
	"github.com/mindease/backend/internal/model/chat"
	"github.com/mindease/backend/internal/service/reply"
)

// FailureText is the canned bot message rendered for every reply
// failure, whatever the cause.
const FailureText = "❌ Unable to contact server."

// Outcome reports which guard, if any, swallowed a send. Rejected
// sends append nothing and issue no network call.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeEmpty     Outcome = "empty"
	OutcomeBusy      Outcome = "busy"
	OutcomeDuplicate Outcome = "duplicate"
)

// Flags is the transient per-conversation state record. The booleans
// are independent; listening and sending may overlap while a capture
// finishes during an in-flight send.
type Flags struct {
	Sending      bool `json:"sending"`
	Typing       bool `json:"typing"`
	Listening    bool `json:"listening"`
	VoiceEnabled bool `json:"voiceEnabled"`
}

// Result is the visible effect of one Send call.
type Result struct {
	Outcome     Outcome
	UserMessage *chat.Message
	BotMessage  *chat.Message
	// SpeakText carries the reply to hand to speech playback when the
	// send had voice origin and voice replies are enabled.
	SpeakText string
}

type state struct {
	mu    sync.Mutex
	flags Flags
	input string
}

// Controller owns all widget behavior: draft input, send guards,
// optimistic transcript appends and the flag lifecycle around the one
// in-flight reply request per conversation.
type Controller struct {
	store   *Service
	replies reply.Fetcher
	broker  *Broker
	log     *logrus.Logger

	typingDelay     time.Duration
	duplicateWindow time.Duration

	// guard holds the last successfully submitted text per conversation;
	// entry TTL is the resend cooldown, checked as a deadline on read.
	guard *gocache.Cache

	mu     sync.Mutex
	states map[string]*state
}

// NewController wires the controller over the store, the reply service
// client and the event broker.
func NewController(store *Service, replies reply.Fetcher, broker *Broker, cfg config.ControllerConfig, log *logrus.Logger) *Controller {
	window := cfg.DuplicateWindow
	if window <= 0 {
		window = 1200 * time.Millisecond
	}

	return &Controller{
		store:           store,
		replies:         replies,
		broker:          broker,
		log:             log,
		typingDelay:     cfg.TypingDelay,
		duplicateWindow: window,
		guard:           gocache.New(window, 10*window),
		states:          make(map[string]*state),
	}
}

func (c *Controller) state(conversationID string) *state {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[conversationID]
	if !ok {
		st = &state{flags: Flags{VoiceEnabled: true}}
		c.states[conversationID] = st
	}
	return st
}

// Flags returns a snapshot of the conversation's state record.
func (c *Controller) Flags(conversationID string) Flags {
	st := c.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.flags
}

// Input returns the current draft text.
func (c *Controller) Input(conversationID string) string {
	st := c.state(conversationID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.input
}

// SetInput replaces the draft text, as a recognizer transcript does
// just before it triggers a voice send.
func (c *Controller) SetInput(conversationID, text string) {
	st := c.state(conversationID)
	st.mu.Lock()
	st.input = text
	st.mu.Unlock()
}

// SetListening flips the capture flag. Reset unconditionally at end of
// capture, including after recognizer errors.
func (c *Controller) SetListening(conversationID string, listening bool) {
	st := c.state(conversationID)
	st.mu.Lock()
	st.flags.Listening = listening
	st.mu.Unlock()

	c.broker.Publish(conversationID, EventListening, listening)
}

// SetVoiceEnabled toggles spoken playback of replies.
func (c *Controller) SetVoiceEnabled(conversationID string, enabled bool) {
	st := c.state(conversationID)
	st.mu.Lock()
	st.flags.VoiceEnabled = enabled
	st.mu.Unlock()
}

// Send runs the whole send flow for one message. Guards are checked in
// order (empty, busy, duplicate) and each rejection is a silent no-op.
// Whatever happens after acceptance, the transcript ends with a bot
// entry and the sending/typing flags are cleared.
func (c *Controller) Send(ctx context.Context, conversationID, rawText string, voiceOrigin bool) (Result, error) {
	if _, err := c.store.Get(ctx, conversationID); err != nil {
		return Result{}, err
	}

	text := strings.TrimSpace(rawText)
	if text == "" {
		return Result{Outcome: OutcomeEmpty}, nil
	}

	st := c.state(conversationID)

	st.mu.Lock()
	if st.flags.Sending {
		st.mu.Unlock()
		return Result{Outcome: OutcomeBusy}, nil
	}
	if last, ok := c.guard.Get(conversationID); ok && last.(string) == text {
		st.mu.Unlock()
		return Result{Outcome: OutcomeDuplicate}, nil
	}
	c.guard.Set(conversationID, text, gocache.NoExpiration)
	st.flags.Sending = true
	st.flags.Typing = true
	st.input = ""
	voiceEnabled := st.flags.VoiceEnabled
	st.mu.Unlock()

	c.broker.Publish(conversationID, EventTyping, true)

	defer func() {
		st.mu.Lock()
		st.flags.Sending = false
		st.flags.Typing = false
		st.mu.Unlock()

		// The resend cooldown starts once the send has completed.
		c.guard.Set(conversationID, text, c.duplicateWindow)
		c.broker.Publish(conversationID, EventTyping, false)
	}()

	userMsg, err := c.store.Append(ctx, chat.Message{
		ConversationID: conversationID,
		Role:           chat.RoleUser,
		Text:           text,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		return Result{}, err
	}
	c.broker.Publish(conversationID, EventMessage, userMsg)

	rep, err := c.replies.Fetch(ctx, text, voiceOrigin)
	if err != nil {
		c.log.WithError(err).WithField("conversation_id", conversationID).Error("reply request failed")
		return c.finishWithFailure(ctx, conversationID, userMsg)
	}

	// Keep the typing indicator up briefly so the reply does not pop in
	// the instant the request returns.
	if c.typingDelay > 0 {
		select {
		case <-time.After(c.typingDelay):
		case <-ctx.Done():
		}
	}

	botMsg, err := c.store.Append(ctx, chat.Message{
		ConversationID: conversationID,
		Role:           chat.RoleBot,
		Text:           rep.Text,
		Mood:           rep.Mood,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		return Result{}, err
	}
	c.broker.Publish(conversationID, EventMessage, botMsg)

	if rep.Mood != nil {
		if transcript, err := c.store.Transcript(ctx, conversationID); err == nil {
			c.broker.Publish(conversationID, EventMood, mood.Summarize(transcript))
		}
	}

	result := Result{Outcome: OutcomeAccepted, UserMessage: &userMsg, BotMessage: &botMsg}
	if voiceOrigin && voiceEnabled && rep.Text != "" {
		result.SpeakText = rep.Text
	}
	return result, nil
}

func (c *Controller) finishWithFailure(ctx context.Context, conversationID string, userMsg chat.Message) (Result, error) {
	botMsg, err := c.store.Append(ctx, chat.Message{
		ConversationID: conversationID,
		Role:           chat.RoleBot,
		Text:           FailureText,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		return Result{}, err
	}
	c.broker.Publish(conversationID, EventMessage, botMsg)

	return Result{Outcome: OutcomeAccepted, UserMessage: &userMsg, BotMessage: &botMsg}, nil
}
