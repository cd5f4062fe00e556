package conversation

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mindease/backend/internal/config"
	"github.com/mindease/backend/internal/model/chat"
	"github.com/mindease/backend/internal/service/reply"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	reply   reply.Reply
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, message string, voice bool) (reply.Reply, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return reply.Reply{}, ctx.Err()
		}
	}

	return f.reply, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestController(t *testing.T, fetcher reply.Fetcher, cfg config.ControllerConfig) (*Controller, *Service, string) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := NewService()
	controller := NewController(store, fetcher, NewBroker(), cfg, log)

	conv, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	return controller, store, conv.ID
}

func moodScore(v float64) *float64 { return &v }

func TestSendEmptyInputIsNoOp(t *testing.T) {
	fetcher := &fakeFetcher{}
	controller, store, id := newTestController(t, fetcher, config.ControllerConfig{})

	for _, input := range []string{"", "   ", "\n\t "} {
		result, err := controller.Send(context.Background(), id, input, false)
		if err != nil {
			t.Fatalf("Send err: %v", err)
		}
		if result.Outcome != OutcomeEmpty {
			t.Fatalf("expected empty outcome for %q, got %s", input, result.Outcome)
		}
	}

	if fetcher.callCount() != 0 {
		t.Fatalf("expected no reply calls, got %d", fetcher.callCount())
	}
	transcript, _ := store.Transcript(context.Background(), id)
	if len(transcript) != 0 {
		t.Fatalf("expected empty transcript, got %d messages", len(transcript))
	}
}

func TestSendWhileBusyIsNoOp(t *testing.T) {
	fetcher := &fakeFetcher{
		reply:   reply.Reply{Text: "hi there"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	controller, store, id := newTestController(t, fetcher, config.ControllerConfig{})

	started := fetcher.started
	done := make(chan Result, 1)
	go func() {
		result, _ := controller.Send(context.Background(), id, "first message", false)
		done <- result
	}()

	<-started
	if !controller.Flags(id).Sending {
		t.Fatal("sending flag should be set while a send is in flight")
	}

	second, err := controller.Send(context.Background(), id, "second message", false)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if second.Outcome != OutcomeBusy {
		t.Fatalf("expected busy outcome, got %s", second.Outcome)
	}

	close(fetcher.release)
	first := <-done
	if first.Outcome != OutcomeAccepted {
		t.Fatalf("expected first send accepted, got %s", first.Outcome)
	}

	if fetcher.callCount() != 1 {
		t.Fatalf("expected exactly one reply call, got %d", fetcher.callCount())
	}
	transcript, _ := store.Transcript(context.Background(), id)
	if len(transcript) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(transcript))
	}
}

func TestSendDuplicateWithinWindow(t *testing.T) {
	fetcher := &fakeFetcher{reply: reply.Reply{Text: "ok"}}
	controller, _, id := newTestController(t, fetcher, config.ControllerConfig{
		DuplicateWindow: time.Minute,
	})

	ctx := context.Background()
	if result, _ := controller.Send(ctx, id, "same thing", false); result.Outcome != OutcomeAccepted {
		t.Fatalf("first send should be accepted, got %s", result.Outcome)
	}

	// Identical trimmed text within the cooldown is silently dropped.
	result, err := controller.Send(ctx, id, "  same thing  ", false)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if result.Outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate outcome, got %s", result.Outcome)
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("expected one reply call, got %d", fetcher.callCount())
	}
}

func TestSendDuplicateAfterWindowAccepted(t *testing.T) {
	fetcher := &fakeFetcher{reply: reply.Reply{Text: "ok"}}
	controller, _, id := newTestController(t, fetcher, config.ControllerConfig{
		DuplicateWindow: 20 * time.Millisecond,
	})

	ctx := context.Background()
	if result, _ := controller.Send(ctx, id, "same thing", false); result.Outcome != OutcomeAccepted {
		t.Fatal("first send should be accepted")
	}

	time.Sleep(60 * time.Millisecond)

	result, err := controller.Send(ctx, id, "same thing", false)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if result.Outcome != OutcomeAccepted {
		t.Fatalf("expected resend accepted after cooldown, got %s", result.Outcome)
	}
	if fetcher.callCount() != 2 {
		t.Fatalf("expected two reply calls, got %d", fetcher.callCount())
	}
}

func TestSendSuccessAppendsUserThenBot(t *testing.T) {
	fetcher := &fakeFetcher{reply: reply.Reply{Text: "Hello", Mood: moodScore(3)}}
	controller, store, id := newTestController(t, fetcher, config.ControllerConfig{})

	controller.SetInput(id, "how are you")
	result, err := controller.Send(context.Background(), id, "how are you", false)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if result.Outcome != OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", result.Outcome)
	}

	transcript, _ := store.Transcript(context.Background(), id)
	if len(transcript) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(transcript))
	}
	if transcript[0].Role != chat.RoleUser || transcript[0].Text != "how are you" {
		t.Fatalf("unexpected user message: %+v", transcript[0])
	}
	if transcript[1].Role != chat.RoleBot || transcript[1].Text != "Hello" {
		t.Fatalf("unexpected bot message: %+v", transcript[1])
	}
	if transcript[1].Mood == nil || *transcript[1].Mood != 3 {
		t.Fatalf("bot message should carry mood 3: %+v", transcript[1])
	}
	if transcript[1].Timestamp.Before(transcript[0].Timestamp) {
		t.Fatal("bot message should not predate the user message")
	}

	if controller.Input(id) != "" {
		t.Fatalf("draft should be cleared, got %q", controller.Input(id))
	}
}

func TestSendFailureAppendsCannedMessage(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	controller, store, id := newTestController(t, fetcher, config.ControllerConfig{})

	result, err := controller.Send(context.Background(), id, "anyone there?", false)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if result.Outcome != OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", result.Outcome)
	}
	if result.BotMessage == nil || result.BotMessage.Text != FailureText {
		t.Fatalf("expected canned failure message, got %+v", result.BotMessage)
	}

	transcript, _ := store.Transcript(context.Background(), id)
	if len(transcript) != 2 || transcript[1].Text != FailureText {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}

	flags := controller.Flags(id)
	if flags.Sending || flags.Typing {
		t.Fatalf("flags should be cleared after failure: %+v", flags)
	}
}

func TestVoiceSendRequestsPlayback(t *testing.T) {
	fetcher := &fakeFetcher{reply: reply.Reply{Text: "Take a slow breath."}}
	controller, _, id := newTestController(t, fetcher, config.ControllerConfig{})

	result, err := controller.Send(context.Background(), id, "I feel anxious", true)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if result.SpeakText != "Take a slow breath." {
		t.Fatalf("expected playback text, got %q", result.SpeakText)
	}

	// Text-origin sends never request playback.
	time.Sleep(5 * time.Millisecond)
	result, err = controller.Send(context.Background(), id, "still here", false)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if result.SpeakText != "" {
		t.Fatalf("text send should not request playback, got %q", result.SpeakText)
	}
}

func TestVoiceSendWithPlaybackDisabled(t *testing.T) {
	fetcher := &fakeFetcher{reply: reply.Reply{Text: "Hi."}}
	controller, _, id := newTestController(t, fetcher, config.ControllerConfig{})

	controller.SetVoiceEnabled(id, false)
	result, err := controller.Send(context.Background(), id, "hello", true)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if result.SpeakText != "" {
		t.Fatalf("playback disabled, got %q", result.SpeakText)
	}
}

func TestSendUnknownConversation(t *testing.T) {
	fetcher := &fakeFetcher{}
	controller, _, _ := newTestController(t, fetcher, config.ControllerConfig{})

	if _, err := controller.Send(context.Background(), "missing", "hello", false); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestListeningOverlapsSending(t *testing.T) {
	fetcher := &fakeFetcher{
		reply:   reply.Reply{Text: "ok"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	controller, _, id := newTestController(t, fetcher, config.ControllerConfig{})

	started := fetcher.started
	done := make(chan struct{})
	go func() {
		controller.Send(context.Background(), id, "voice note", true)
		close(done)
	}()

	<-started
	controller.SetListening(id, true)

	flags := controller.Flags(id)
	if !flags.Listening || !flags.Sending {
		t.Fatalf("listening and sending should overlap freely: %+v", flags)
	}

	controller.SetListening(id, false)
	close(fetcher.release)
	<-done
}
