package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindease_http_requests_total",
		Help: "Total HTTP requests handled",
	}, []string{"method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mindease_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindease_sends_total",
		Help: "Send attempts by guard outcome",
	}, []string{"outcome", "voice"})

	replyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mindease_reply_duration_seconds",
		Help:    "Round trip time of the reply service call",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	voiceSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mindease_voice_sessions_active",
		Help: "Open voice capture websockets",
	})
)

// Metrics records gateway events to the default prometheus registry.
type Metrics struct{}

// NewMetrics creates the recorder.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordSend counts one send attempt by outcome.
func (m *Metrics) RecordSend(outcome string, voice bool) {
	sendsTotal.WithLabelValues(outcome, strconv.FormatBool(voice)).Inc()
}

// RecordReply observes one reply round trip.
func (m *Metrics) RecordReply(duration time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	replyDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// VoiceSessionOpened / VoiceSessionClosed track capture websockets.
func (m *Metrics) VoiceSessionOpened() { voiceSessions.Inc() }
func (m *Metrics) VoiceSessionClosed() { voiceSessions.Dec() }

// Handler exposes the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the wrapper.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack keeps websocket upgrades working through the wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Instrument wraps a handler with request counting and latency.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
