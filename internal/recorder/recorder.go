package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mrxnn/meetscribe/internal/capture"
)

// ErrNoAudioCaptured indicates stop was called before any encoded chunk
// arrived; the user must re-record.
var ErrNoAudioCaptured = errors.New("no audio captured")

// Blob is a finished recording: one encoded byte sequence tagged with its
// source container format.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Encoder is the collaborator that consumes a live stream and emits encoded
// chunks asynchronously at implementation-defined intervals. Stop must flush
// any buffered audio through the chunk callback before returning.
type Encoder interface {
	Start(stream *capture.Stream, onChunk func(chunk []byte)) error
	Stop() error
}

// Stats reports recorder accumulation state for monitoring
type Stats struct {
	Chunks     int           `json:"chunks"`
	TotalBytes int           `json:"total_bytes"`
	Recording  bool          `json:"recording"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Recorder buffers encoded chunks from a live mixed stream into a finished
// encoded blob. Its only job is lossless, order-preserving accumulation and
// final concatenation.
type Recorder struct {
	encoder  Encoder
	mimeType string
	logger   *slog.Logger

	mu         sync.Mutex
	chunks     [][]byte
	totalBytes int
	recording  bool
	startedAt  time.Time
}

// New creates a recorder that tags finished blobs with the given MIME type
func New(encoder Encoder, mimeType string, logger *slog.Logger) *Recorder {
	return &Recorder{
		encoder:  encoder,
		mimeType: mimeType,
		logger:   logger,
	}
}

// Start begins accumulating encoded chunks from the given stream
func (r *Recorder) Start(stream *capture.Stream) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("recorder already started")
	}
	r.chunks = nil
	r.totalBytes = 0
	r.recording = true
	r.startedAt = time.Now()
	r.mu.Unlock()

	if err := r.encoder.Start(stream, r.appendChunk); err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	r.logger.Info("Recorder started",
		slog.String("stream_id", stream.ID()),
		slog.String("mime_type", r.mimeType),
	)

	return nil
}

// appendChunk accumulates one encoded chunk in arrival order. Chunks that
// arrive after stop are dropped.
func (r *Recorder) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	r.chunks = append(r.chunks, buf)
	r.totalBytes += len(buf)
}

// Stop flushes the encoder and concatenates the accumulated chunks into one
// blob. Fails with ErrNoAudioCaptured when no chunk ever arrived.
func (r *Recorder) Stop() (Blob, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return Blob{}, fmt.Errorf("recorder not started")
	}
	r.mu.Unlock()

	// Flush before sealing the buffer so trailing chunks still land
	if err := r.encoder.Stop(); err != nil {
		r.logger.Warn("Encoder stop reported error", slog.String("error", err.Error()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.recording = false

	if r.totalBytes == 0 {
		return Blob{}, ErrNoAudioCaptured
	}

	data := make([]byte, 0, r.totalBytes)
	for _, chunk := range r.chunks {
		data = append(data, chunk...)
	}
	r.chunks = nil
	r.totalBytes = 0

	r.logger.Info("Recorder stopped",
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(r.startedAt)),
	)

	return Blob{Data: data, MIMEType: r.mimeType}, nil
}

// GetStats returns current accumulation statistics
func (r *Recorder) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var elapsed time.Duration
	if r.recording {
		elapsed = time.Since(r.startedAt)
	}

	return Stats{
		Chunks:     len(r.chunks),
		TotalBytes: r.totalBytes,
		Recording:  r.recording,
		Elapsed:    elapsed,
	}
}
