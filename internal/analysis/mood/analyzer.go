package mood

import (
	"github.com/mindease/backend/internal/model/chat"
)

// Band is a display label for a 0-100 mood score as reported by the
// reply service (derived from sentiment polarity, 50 is neutral).
type Band string

const (
	Low     Band = "low"
	Heavy   Band = "heavy"
	Steady  Band = "steady"
	Bright  Band = "bright"
	Glowing Band = "glowing"
	Unknown Band = "unknown"
)

// Summary describes the mood carried by a transcript slice.
type Summary struct {
	Band    Band    `json:"band"`
	Average float64 `json:"average"`
	// Trend is the delta between the latest scored turn and the average
	// of the earlier ones; positive means the conversation is lifting.
	Trend   float64 `json:"trend"`
	Samples int     `json:"samples"`
}

// Classify maps a score to its display band.
func Classify(score float64) Band {
	if score < 0 || score > 100 {
		return Unknown
	}
	switch {
	case score < 20:
		return Low
	case score < 40:
		return Heavy
	case score < 60:
		return Steady
	case score < 80:
		return Bright
	default:
		return Glowing
	}
}

// Summarize folds the scored turns of a transcript into one Summary.
// Unscored messages are skipped; an empty sample set yields Unknown.
func Summarize(messages []chat.Message) Summary {
	var scores []float64
	for _, m := range messages {
		if m.Mood == nil {
			continue
		}
		scores = append(scores, *m.Mood)
	}

	if len(scores) == 0 {
		return Summary{Band: Unknown}
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(len(scores))

	trend := 0.0
	if len(scores) > 1 {
		latest := scores[len(scores)-1]
		prior := (sum - latest) / float64(len(scores)-1)
		trend = latest - prior
	}

	return Summary{
		Band:    Classify(avg),
		Average: avg,
		Trend:   trend,
		Samples: len(scores),
	}
}
