package speech

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Audio is one synthesized utterance.
type Audio struct {
	Data   []byte
	Format string
}

// Synthesize renders reply text to speech with the configured voice.
// Callers treat this as fire-and-forget playback; there is no partial
// delivery, the whole utterance is returned or nothing is.
func (s *Service) Synthesize(ctx context.Context, conversationID, text string) (*Audio, error) {
	conn, err := s.dial(ctx, startFrame{
		Task:  taskSynthesize,
		Text:  text,
		Voice: NormalizeVoiceAlias(s.cfg.TTSVoice),
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout())
	var buf bytes.Buffer
	format := "mp3"

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conn.SetReadDeadline(deadline)
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read synthesis frame: %w", err)
		}

		if messageType == websocket.BinaryMessage {
			buf.Write(payload)
			continue
		}

		frame, err := decodeControlFrame(payload)
		if err != nil {
			return nil, err
		}

		switch frame.Type {
		case frameComplete:
			if frame.Format != "" {
				format = frame.Format
			}
			s.log.WithFields(logrus.Fields{
				"conversation_id": conversationID,
				"bytes":           buf.Len(),
				"format":          format,
			}).Debug("synthesis complete")
			return &Audio{Data: buf.Bytes(), Format: format}, nil
		case frameError:
			return nil, fmt.Errorf("provider synthesis error: %s", frame.Message)
		}
	}
}
