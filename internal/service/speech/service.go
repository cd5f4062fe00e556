package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mindease/backend/internal/config"
)

// ErrUnavailable is returned when the voice facility was not detected
// at startup (missing provider URL or credentials).
var ErrUnavailable = errors.New("speech facility not configured")

// Service fronts the speech provider: websocket recognition for voice
// capture and websocket synthesis for spoken playback. The locale is
// fixed at configuration time for both directions.
type Service struct {
	cfg    config.SpeechConfig
	log    *logrus.Logger
	dialer *websocket.Dialer
}

// NewService builds the facade. It never fails; capability is checked
// per call so an unconfigured facility degrades to ErrUnavailable.
func NewService(cfg config.SpeechConfig, log *logrus.Logger) *Service {
	return &Service{
		cfg: cfg,
		log: log,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// Enabled reports whether the provider is fully configured.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

// Locale returns the fixed capture/playback locale.
func (s *Service) Locale() string {
	return s.cfg.Locale
}

func (s *Service) timeout() time.Duration {
	if s.cfg.Timeout > 0 {
		return s.cfg.Timeout
	}
	return 30 * time.Second
}

// dial opens a provider connection and performs the start handshake
// for the given task ("recognize" or "synthesize").
func (s *Service) dial(ctx context.Context, start startFrame) (*websocket.Conn, error) {
	if !s.cfg.Enabled {
		return nil, ErrUnavailable
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	header.Set("X-App-Id", s.cfg.AppID)

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.ProviderURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial speech provider: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial speech provider: %w", err)
	}

	start.Type = frameStart
	start.AppID = s.cfg.AppID
	if start.Locale == "" {
		start.Locale = s.cfg.Locale
	}

	conn.SetWriteDeadline(time.Now().Add(s.timeout()))
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send start frame: %w", err)
	}

	return conn, nil
}

// NormalizeVoiceAlias maps friendly voice names onto provider voice
// identifiers; unknown values pass through untouched.
func NormalizeVoiceAlias(voice string) string {
	switch strings.ToLower(strings.TrimSpace(voice)) {
	case "", "warm", "warm-1", "default":
		return "en_female_warm_1"
	case "calm", "calm-1":
		return "en_female_calm_1"
	case "low", "deep":
		return "en_male_low_1"
	default:
		return voice
	}
}
