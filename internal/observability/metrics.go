package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "voxcanvas"

// Outcome labels.
const (
	StatusSuccess     = "success"
	StatusEmpty       = "empty"
	StatusError       = "error"
	StatusTimeout     = "timeout"
	StatusEmptyPrompt = "empty_prompt"
	StatusStale       = "stale"
)

// Metrics holds the client's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	recordings          prometheus.Counter
	deviceFailures      prometheus.Counter
	uploadsInFlight     prometheus.Gauge
	transcriptions      *prometheus.CounterVec
	transcriptionTime   prometheus.Histogram
	audioBytes          prometheus.Counter
	imageGenerations    *prometheus.CounterVec
	imageGenerationTime prometheus.Histogram
	liveHandles         prometheus.Gauge
	chatMessages        *prometheus.CounterVec
	chatTime            prometheus.Histogram
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	latencyBuckets := []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30}

	return &Metrics{
		registry: registry,
		recordings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Recordings started.",
		}),
		deviceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_failures_total",
			Help:      "Recording attempts that could not acquire the microphone.",
		}),
		uploadsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcription_uploads_in_flight",
			Help:      "Clips uploaded for transcription and not yet settled.",
		}),
		transcriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Transcription outcomes.",
		}, []string{"status"}),
		transcriptionTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Time from upload to settled transcription.",
			Buckets:   latencyBuckets,
		}),
		audioBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Encoded audio bytes captured.",
		}),
		imageGenerations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_generations_total",
			Help:      "Image generation outcomes by response branch.",
		}, []string{"branch", "status"}),
		imageGenerationTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_generation_latency_seconds",
			Help:      "Time from request to settled image result.",
			Buckets:   latencyBuckets,
		}),
		liveHandles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_handles_live",
			Help:      "Revocable image handles currently minted.",
		}),
		chatMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat message outcomes.",
		}, []string{"status"}),
		chatTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_seconds",
			Help:      "Time from send to settled chat reply.",
			Buckets:   latencyBuckets,
		}),
	}
}

// Registry exposes the underlying registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// LiveHandles is the gauge the blob store keeps in sync. It is nil when m is nil.
func (m *Metrics) LiveHandles() prometheus.Gauge {
	if m == nil {
		return nil
	}
	return m.liveHandles
}

func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.recordings.Inc()
}

func (m *Metrics) RecordDeviceFailure() {
	if m == nil {
		return
	}
	m.deviceFailures.Inc()
}

func (m *Metrics) RecordAudioBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.audioBytes.Add(float64(n))
}

// RecordUploadStart marks an upload in flight and returns a function that
// settles it with status.
func (m *Metrics) RecordUploadStart() func(status string) {
	if m == nil {
		return func(string) {}
	}
	started := time.Now()
	m.uploadsInFlight.Inc()
	return func(status string) {
		m.uploadsInFlight.Dec()
		m.transcriptionTime.Observe(time.Since(started).Seconds())
		m.transcriptions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) RecordTranscription(status string) {
	if m == nil {
		return
	}
	m.transcriptions.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordImageGeneration(branch string, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if branch == "" {
		branch = "none"
	}
	m.imageGenerations.WithLabelValues(branch, status).Inc()
	if elapsed > 0 {
		m.imageGenerationTime.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) RecordChatMessage(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.chatMessages.WithLabelValues(status).Inc()
	if elapsed > 0 {
		m.chatTime.Observe(elapsed.Seconds())
	}
}

// HealthStatus is served on /healthz next to the metrics endpoint.
type HealthStatus struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

func HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(HealthStatus{
			Status:    "healthy",
			Service:   namespace,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", HealthCheckHandler())
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
