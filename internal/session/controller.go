package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mrxnn/meetscribe/internal/capture"
	"github.com/mrxnn/meetscribe/internal/metrics"
	"github.com/mrxnn/meetscribe/internal/recorder"
	"github.com/mrxnn/meetscribe/internal/store"
	"github.com/mrxnn/meetscribe/internal/transcription"
)

// ErrSessionActive indicates start was called while a recording or
// transcription cycle is already running; the call is rejected, not queued.
var ErrSessionActive = errors.New("a recording session is already active")

// State is the controller's user-facing state
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateError
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Mode selects the capture configuration. The mode is sticky: once a session
// falls back to microphone-only it stays there until the user changes it.
type Mode int

const (
	ModeSystemAndMic Mode = iota
	ModeMicOnly
)

// String returns a human-readable mode name
func (m Mode) String() string {
	switch m {
	case ModeSystemAndMic:
		return "system+mic"
	case ModeMicOnly:
		return "mic-only"
	default:
		return "unknown"
	}
}

// RecordingState is the UI-facing session state, owned exclusively by the
// controller and reset at session end.
type RecordingState struct {
	IsRecording              bool `json:"is_recording"`
	IsTranscribing           bool `json:"is_transcribing"`
	RecordingDurationSeconds int  `json:"recording_duration_seconds"`
}

// Status is a full snapshot of the controller for display
type Status struct {
	State        State
	Mode         Mode
	Recording    RecordingState
	Error        string
	Warning      string
	Transcript   string
	LastProgress *transcription.Progress
}

// Acquirer obtains raw capture streams
type Acquirer interface {
	AcquireSystemAndMic(ctx context.Context) (*capture.Pair, error)
	AcquireMic(ctx context.Context) (*capture.Stream, error)
}

// Graph is a running mixing graph that must be closed on stop
type Graph interface {
	Output() *capture.Stream
	Close() error
}

// Mixer builds a mixing graph over the system and mic streams
type Mixer interface {
	Mix(system, mic *capture.Stream) (Graph, error)
}

// Recorder accumulates encoded chunks from a live stream
type Recorder interface {
	Start(stream *capture.Stream) error
	Stop() (recorder.Blob, error)
}

// Transcoder converts a recorded blob into a canonical WAV file
type Transcoder interface {
	ToWAV(ctx context.Context, blob recorder.Blob) ([]byte, error)
}

// Transcriber runs the external transcription engine and exposes its
// progress event stream.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string) (*transcription.Result, error)
	Subscribe() (<-chan transcription.Progress, func())
}

// Saver persists the encoded audio and returns its file path
type Saver interface {
	SaveEncodedAudio(ctx context.Context, data []byte) (string, error)
}

// Registrar registers a completed recording with the external layer, which
// assigns the meeting id.
type Registrar interface {
	RegisterRecording(ctx context.Context, audioPath, transcript string) (store.RecordingInfo, error)
}

// Deps wires the controller's collaborators. Meetings and Metrics may be nil.
type Deps struct {
	Acquirer    Acquirer
	Mixer       Mixer
	NewRecorder func() Recorder
	Transcoder  Transcoder
	Transcriber Transcriber
	Saver       Saver
	Registrar   Registrar
	Meetings    *store.Store
	Metrics     *metrics.Metrics
	Logger      *slog.Logger

	// TickInterval overrides the 1-second duration tick, for tests
	TickInterval time.Duration
}

// Controller orchestrates one recording attempt at a time:
// Idle -> Recording -> Transcribing -> Idle, with Error reachable from any
// state. It exclusively owns the active streams, mixing graph, and recorder.
type Controller struct {
	deps Deps
	tick time.Duration

	mu           sync.Mutex
	state        State
	mode         Mode
	duration     int
	errMsg       string
	warning      string
	transcript   string
	lastProgress *transcription.Progress

	streams  []*capture.Stream
	graph    Graph
	rec      Recorder
	tickStop chan struct{}
}

// NewController creates a session controller in system+mic mode
func NewController(deps Deps) *Controller {
	tick := deps.TickInterval
	if tick <= 0 {
		tick = time.Second
	}

	return &Controller{
		deps: deps,
		tick: tick,
	}
}

// SetMode selects the capture mode for the next session. Rejected while a
// session is active.
func (c *Controller) SetMode(mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRecording || c.state == StateTranscribing {
		return ErrSessionActive
	}

	c.mode = mode
	return nil
}

// Start begins a new recording session. Calling it while Recording or
// Transcribing is a no-op rejection. On system-source failure the controller
// transparently retries microphone-only and keeps that mode for the rest of
// the session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRecording || c.state == StateTranscribing {
		c.deps.Logger.Warn("Start rejected, session already active",
			slog.String("state", c.state.String()),
		)
		return ErrSessionActive
	}

	// Clear prior results before the new attempt
	c.errMsg = ""
	c.warning = ""
	c.transcript = ""
	c.lastProgress = nil
	c.duration = 0

	active, err := c.acquireLocked(ctx)
	if err != nil {
		c.failLocked(err)
		return err
	}

	rec := c.deps.NewRecorder()
	if err := rec.Start(active); err != nil {
		c.releaseLocked()
		c.failLocked(err)
		return err
	}
	c.rec = rec

	c.tickStop = make(chan struct{})
	go c.runTick(c.tickStop)

	c.state = StateRecording

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordingsStarted.Inc()
	}

	c.deps.Logger.Info("Recording started",
		slog.String("mode", c.mode.String()),
		slog.String("stream_id", active.ID()),
	)

	return nil
}

// acquireLocked obtains the active stream for the configured mode, applying
// the microphone fallback when system capture fails.
func (c *Controller) acquireLocked(ctx context.Context) (*capture.Stream, error) {
	if c.mode == ModeSystemAndMic {
		pair, err := c.deps.Acquirer.AcquireSystemAndMic(ctx)
		if err == nil {
			graph, mixErr := c.deps.Mixer.Mix(pair.System, pair.Mic)
			if mixErr != nil {
				pair.StopAll()
				return nil, fmt.Errorf("failed to build mixing graph: %w", mixErr)
			}

			c.streams = []*capture.Stream{pair.System, pair.Mic}
			c.graph = graph
			return graph.Output(), nil
		}

		// Non-fatal: surface a warning and stay in mic-only mode from here on
		c.warning = fmt.Sprintf("system audio unavailable, recording microphone only: %v", err)
		c.mode = ModeMicOnly

		if c.deps.Metrics != nil {
			c.deps.Metrics.FallbackActivations.Inc()
		}

		c.deps.Logger.Warn("System capture failed, falling back to microphone",
			slog.String("error", err.Error()),
		)
	}

	mic, err := c.deps.Acquirer.AcquireMic(ctx)
	if err != nil {
		return nil, err
	}

	c.streams = []*capture.Stream{mic}
	return mic, nil
}

// runTick increments the recording duration once per tick while Recording.
// Purely UI feedback; stops on any exit from the Recording state.
func (c *Controller) runTick(stop chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.state == StateRecording {
				c.duration++
			}
			c.mu.Unlock()
		}
	}
}

// Stop ends the active recording and runs the transcode -> save ->
// transcribe pipeline. Device handles, the mixing graph, and the duration
// tick are released unconditionally, independent of downstream success.
// Calling Stop without an active recording is a no-op.
func (c *Controller) Stop(ctx context.Context) (*store.Meeting, error) {
	c.mu.Lock()

	if c.state != StateRecording {
		c.releaseLocked()
		c.mu.Unlock()
		return nil, nil
	}

	recordedSeconds := c.duration

	blob, recErr := c.rec.Stop()
	c.rec = nil

	// Release is unconditional on the stop transition
	c.releaseLocked()

	if recErr != nil {
		c.failLocked(recErr)
		c.mu.Unlock()
		return nil, recErr
	}

	c.state = StateTranscribing
	c.mu.Unlock()

	c.deps.Logger.Info("Recording stopped, transcribing",
		slog.Int("encoded_bytes", len(blob.Data)),
		slog.Int("recorded_seconds", recordedSeconds),
	)

	meeting, err := c.runPipeline(ctx, blob)
	if err != nil {
		c.mu.Lock()
		c.failLocked(err)
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.state = StateIdle
	c.duration = 0
	c.mu.Unlock()

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordingsCompleted.Inc()
		c.deps.Metrics.RecordingDuration.Observe(float64(recordedSeconds))
	}

	return meeting, nil
}

// runPipeline performs transcode -> save -> transcribe -> register
func (c *Controller) runPipeline(ctx context.Context, blob recorder.Blob) (*store.Meeting, error) {
	wav, err := c.deps.Transcoder.ToWAV(ctx, blob)
	if err != nil {
		if c.deps.Metrics != nil {
			c.deps.Metrics.TranscodeFailures.Inc()
		}
		return nil, err
	}

	if c.deps.Metrics != nil {
		c.deps.Metrics.TranscodeBytes.Observe(float64(len(wav)))
	}

	path, err := c.deps.Saver.SaveEncodedAudio(ctx, wav)
	if err != nil {
		return nil, fmt.Errorf("failed to save recording: %w", err)
	}

	// Watch engine progress for the duration of this run
	progressCh, cancelSub := c.deps.Transcriber.Subscribe()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		for p := range progressCh {
			prog := p
			c.mu.Lock()
			c.lastProgress = &prog
			c.mu.Unlock()
		}
	}()

	if c.deps.Metrics != nil {
		c.deps.Metrics.TranscriptionRequests.Inc()
	}

	start := time.Now()
	result, err := c.deps.Transcriber.Transcribe(ctx, path)
	cancelSub()
	<-watchDone

	if err != nil {
		if c.deps.Metrics != nil {
			c.deps.Metrics.TranscriptionFailures.Inc()
		}
		return nil, err
	}

	if c.deps.Metrics != nil {
		c.deps.Metrics.TranscriptionSuccesses.Inc()
		c.deps.Metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())
	}

	c.mu.Lock()
	c.transcript = result.Text
	c.mu.Unlock()

	if c.deps.Registrar == nil {
		return nil, nil
	}

	info, err := c.deps.Registrar.RegisterRecording(ctx, path, result.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to register recording: %w", err)
	}

	if c.deps.Meetings == nil {
		return nil, nil
	}

	meeting := c.deps.Meetings.AddRecording(info, result.Text)
	return &meeting, nil
}

// Acknowledge moves the controller from Error back to Idle. The error
// message stays visible until the next Start.
func (c *Controller) Acknowledge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateError {
		c.state = StateIdle
	}
}

// Close releases all session resources unconditionally, for window close or
// process shutdown mid-recording. Safe to call at any time, any number of
// times.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec != nil {
		// Best-effort flush; the recording is being abandoned
		if _, err := c.rec.Stop(); err != nil && !errors.Is(err, recorder.ErrNoAudioCaptured) {
			c.deps.Logger.Warn("Recorder stop during close", slog.String("error", err.Error()))
		}
		c.rec = nil
	}

	c.releaseLocked()

	if c.state == StateRecording || c.state == StateTranscribing {
		c.state = StateIdle
	}

	return nil
}

// releaseLocked stops all acquired tracks, closes the mixing graph, cancels
// the duration tick, and resets the duration. Idempotent; must not be
// skipped by failures elsewhere in the same transition.
func (c *Controller) releaseLocked() {
	for _, s := range c.streams {
		s.StopAll()
	}
	c.streams = nil

	if c.graph != nil {
		if err := c.graph.Close(); err != nil {
			c.deps.Logger.Warn("Mixing graph close reported error", slog.String("error", err.Error()))
		}
		c.graph = nil
	}

	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}

	c.duration = 0
}

// failLocked converts a stage failure into the Error state with a
// human-readable message.
func (c *Controller) failLocked(err error) {
	c.state = StateError
	c.errMsg = err.Error()
	c.duration = 0

	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordingsFailed.Inc()
	}

	c.deps.Logger.Error("Session failed", slog.String("error", c.errMsg))
}

// Status returns a snapshot of the controller state
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		State: c.state,
		Mode:  c.mode,
		Recording: RecordingState{
			IsRecording:              c.state == StateRecording,
			IsTranscribing:           c.state == StateTranscribing,
			RecordingDurationSeconds: c.duration,
		},
		Error:        c.errMsg,
		Warning:      c.warning,
		Transcript:   c.transcript,
		LastProgress: c.lastProgress,
	}
}
