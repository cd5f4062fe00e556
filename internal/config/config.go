package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the gateway reads at startup.
type Config struct {
	Server     ServerConfig
	Reply      ReplyConfig
	Controller ControllerConfig
	Speech     SpeechConfig
	Logging    LoggingConfig
	RateLimit  RateLimitConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	reply, err := loadReplyConfig()
	if err != nil {
		return nil, err
	}

	controller, err := loadControllerConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	logging := loadLoggingConfig()

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Reply:      reply,
		Controller: controller,
		Speech:     speech,
		Logging:    logging,
		RateLimit:  rateLimit,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// ReplyConfig points at the remote reply service.
type ReplyConfig struct {
	BaseURL string
	Timeout time.Duration
}

func loadReplyConfig() (ReplyConfig, error) {
	timeout, err := parseOptionalIntEnv("REPLY_TIMEOUT")
	if err != nil {
		return ReplyConfig{}, err
	}
	timeoutSeconds := 120
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	return ReplyConfig{
		BaseURL: strings.TrimSuffix(getEnvOrDefault("CHAT_API_BASE_URL", "http://127.0.0.1:5000"), "/"),
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// ControllerConfig tunes the conversation controller timings.
type ControllerConfig struct {
	// TypingDelay smooths perceived latency before a bot reply is appended.
	TypingDelay time.Duration
	// DuplicateWindow is how long an identical resend stays suppressed
	// after the previous send completes.
	DuplicateWindow time.Duration
}

func loadControllerConfig() (ControllerConfig, error) {
	typingMs, err := parseOptionalIntEnv("TYPING_DELAY_MS")
	if err != nil {
		return ControllerConfig{}, err
	}
	typing := 250
	if typingMs != nil {
		typing = *typingMs
	}

	dupMs, err := parseOptionalIntEnv("DUPLICATE_WINDOW_MS")
	if err != nil {
		return ControllerConfig{}, err
	}
	dup := 1200
	if dupMs != nil {
		dup = *dupMs
	}

	return ControllerConfig{
		TypingDelay:     time.Duration(typing) * time.Millisecond,
		DuplicateWindow: time.Duration(dup) * time.Millisecond,
	}, nil
}

// SpeechConfig describes the speech provider used for voice capture
// and spoken playback.
type SpeechConfig struct {
	ProviderURL string
	AppID       string
	AccessToken string
	Locale      string
	TTSVoice    string
	Timeout     time.Duration
	Enabled     bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	providerURL := strings.TrimSpace(os.Getenv("SPEECH_WS_URL"))
	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))

	// Capability detection: voice is available only with a full provider
	// configuration, otherwise the voice surface reports it is missing.
	enabled := providerURL != "" && appID != "" && accessToken != ""

	return SpeechConfig{
		ProviderURL: providerURL,
		AppID:       appID,
		AccessToken: accessToken,
		Locale:      getEnvOrDefault("SPEECH_LOCALE", "en-US"),
		TTSVoice:    getEnvOrDefault("SPEECH_TTS_VOICE", "warm-1"),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		Enabled:     enabled,
	}, nil
}

// LoggingConfig controls logrus setup.
type LoggingConfig struct {
	Level  string
	Format string
	// File enables rotated file output when non-empty; stdout otherwise.
	File string
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "text"),
		File:   strings.TrimSpace(os.Getenv("LOG_FILE")),
	}
}

// RateLimitConfig throttles API clients.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	Enabled           bool
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	rpm, err := parseOptionalIntEnv("RATE_LIMIT_RPM")
	if err != nil {
		return RateLimitConfig{}, err
	}
	if rpm == nil || *rpm <= 0 {
		return RateLimitConfig{Enabled: false}, nil
	}

	burst, err := parseOptionalIntEnv("RATE_LIMIT_BURST")
	if err != nil {
		return RateLimitConfig{}, err
	}
	b := 5
	if burst != nil && *burst > 0 {
		b = *burst
	}

	return RateLimitConfig{RequestsPerMinute: *rpm, Burst: b, Enabled: true}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
