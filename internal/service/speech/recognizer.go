package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// audioChunkSize bounds outbound binary frames to the provider.
const audioChunkSize = 8 * 1024

// Transcript is the single final recognition result for one utterance.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcribe streams one buffered utterance to the provider and waits
// for its final transcript. Interim results are not requested.
func (s *Service) Transcribe(ctx context.Context, conversationID string, audio []byte, format string) (*Transcript, error) {
	if format == "" {
		format = "wav"
	}

	conn, err := s.dial(ctx, startFrame{Task: taskRecognize, Format: format})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout())

	for offset := 0; offset < len(audio); offset += audioChunkSize {
		end := offset + audioChunkSize
		if end > len(audio) {
			end = len(audio)
		}
		conn.SetWriteDeadline(deadline)
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[offset:end]); err != nil {
			return nil, fmt.Errorf("send audio chunk: %w", err)
		}
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(startFrame{Type: frameFinish, Task: taskRecognize}); err != nil {
		return nil, fmt.Errorf("send finish frame: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"bytes":           len(audio),
		"format":          format,
	}).Debug("awaiting transcript")

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conn.SetReadDeadline(deadline)
		var frame controlFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return nil, fmt.Errorf("read recognition frame: %w", err)
		}

		switch frame.Type {
		case frameTranscript:
			if !frame.IsFinal {
				continue
			}
			return &Transcript{Text: frame.Text, Confidence: frame.Confidence}, nil
		case frameError:
			return nil, fmt.Errorf("provider recognition error: %s", frame.Message)
		default:
			// status noise from the provider, keep waiting
		}
	}
}
