package speech

import (
	"encoding/json"
	"fmt"
)

// Provider wire frames. Control frames travel as JSON text messages;
// audio travels as binary messages in both directions.

const (
	frameStart      = "start"
	frameFinish     = "finish"
	frameTranscript = "transcript"
	frameComplete   = "complete"
	frameError      = "error"
)

const (
	taskRecognize  = "recognize"
	taskSynthesize = "synthesize"
)

// startFrame opens a task on a fresh provider connection.
type startFrame struct {
	Type   string `json:"type"`
	Task   string `json:"task"`
	AppID  string `json:"appId"`
	Locale string `json:"locale"`
	// Recognition only. InterimResults stays false: the capture surface
	// wants exactly one final transcript per utterance.
	Format         string `json:"format,omitempty"`
	InterimResults bool   `json:"interimResults"`
	// Synthesis only.
	Text  string `json:"text,omitempty"`
	Voice string `json:"voice,omitempty"`
}

func decodeControlFrame(payload []byte) (controlFrame, error) {
	var frame controlFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return controlFrame{}, fmt.Errorf("decode provider frame: %w", err)
	}
	return frame, nil
}

// controlFrame is every JSON message the provider sends back.
type controlFrame struct {
	Type       string  `json:"type"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	IsFinal    bool    `json:"isFinal,omitempty"`
	Format     string  `json:"format,omitempty"`
	Message    string  `json:"message,omitempty"`
}
