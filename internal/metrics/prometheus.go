package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recording pipeline
type Metrics struct {
	// Recording session metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingsFailed    prometheus.Counter
	FallbackActivations prometheus.Counter
	RecordingDuration   prometheus.Histogram

	// Transcoding metrics
	TranscodeBytes    prometheus.Histogram
	TranscodeFailures prometheus.Counter

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Meeting store metrics
	MeetingsLoaded   prometheus.Gauge
	TranscriptLoads  prometheus.Counter
	MessagesAppended prometheus.Counter

	// Chat metrics
	ChatTurns    prometheus.Counter
	ChatFailures prometheus.Counter
	ChatDuration prometheus.Histogram
}

// New creates and registers all pipeline metrics with the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Recording session metrics
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_recordings_started_total",
			Help: "Total number of recording sessions started",
		}),
		RecordingsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_recordings_completed_total",
			Help: "Total number of recording sessions that produced a transcript",
		}),
		RecordingsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_recordings_failed_total",
			Help: "Total number of recording sessions that ended in error",
		}),
		FallbackActivations: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_mic_fallback_total",
			Help: "Total number of sessions that fell back to microphone-only capture",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_recording_duration_seconds",
			Help:    "Duration of completed recordings in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		// Transcoding metrics
		TranscodeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_transcode_output_bytes",
			Help:    "Size of transcoded WAV files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),
		TranscodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transcode_failures_total",
			Help: "Total number of transcoding failures",
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transcription_requests_total",
			Help: "Total number of transcription engine invocations",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transcription_successes_total",
			Help: "Total number of successful transcriptions",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transcription_failures_total",
			Help: "Total number of failed transcriptions",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_transcription_duration_seconds",
			Help:    "Wall-clock duration of transcription engine runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// Meeting store metrics
		MeetingsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetscribe_meetings_loaded",
			Help: "Number of meetings currently loaded in the store",
		}),
		TranscriptLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_transcript_loads_total",
			Help: "Total number of transcript file reads (lazy fetches)",
		}),
		MessagesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_messages_appended_total",
			Help: "Total number of chat messages appended across meetings",
		}),

		// Chat metrics
		ChatTurns: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_chat_turns_total",
			Help: "Total number of chat completion requests",
		}),
		ChatFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_chat_failures_total",
			Help: "Total number of failed chat completion requests",
		}),
		ChatDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_chat_duration_seconds",
			Help:    "Duration of chat completion round-trips",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
	}
}
