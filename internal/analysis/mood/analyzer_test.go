package mood

import (
	"testing"

	"github.com/mindease/backend/internal/model/chat"
)

func TestClassifyBands(t *testing.T) {
	cases := []struct {
		score float64
		want  Band
	}{
		{5, Low},
		{25, Heavy},
		{50, Steady},
		{70, Bright},
		{95, Glowing},
		{-1, Unknown},
		{101, Unknown},
	}

	for _, tc := range cases {
		if got := Classify(tc.score); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestSummarizeSkipsUnscoredTurns(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	messages := []chat.Message{
		{Role: chat.RoleUser, Text: "hi"},
		{Role: chat.RoleBot, Text: "hello", Mood: score(40)},
		{Role: chat.RoleBot, Text: "better now", Mood: score(60)},
	}

	summary := Summarize(messages)
	if summary.Samples != 2 {
		t.Fatalf("expected 2 samples, got %d", summary.Samples)
	}
	if summary.Average != 50 {
		t.Fatalf("expected average 50, got %f", summary.Average)
	}
	if summary.Band != Steady {
		t.Fatalf("expected steady band, got %s", summary.Band)
	}
	if summary.Trend != 20 {
		t.Fatalf("expected trend 20, got %f", summary.Trend)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	if summary.Band != Unknown {
		t.Fatalf("expected unknown band, got %s", summary.Band)
	}
	if summary.Samples != 0 {
		t.Fatalf("expected 0 samples, got %d", summary.Samples)
	}
}
