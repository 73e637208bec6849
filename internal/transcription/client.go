package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Status enumerates the lifecycle states reported by the engine
type Status string

const (
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

// Progress is a transient engine progress event. The last value overwrites
// any previous one; intermediate events are best-effort.
type Progress struct {
	Status  Status   `json:"status"`
	Percent *float64 `json:"progress_percent,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Result is the terminal output of a transcription run
type Result struct {
	Text           string
	TranscriptPath string
}

// EngineError carries the raw diagnostic text of a failed engine run
type EngineError struct {
	Diagnostic string
	Err        error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("transcription engine failed: %v: %s", e.Err, e.Diagnostic)
	}
	return fmt.Sprintf("transcription engine failed: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Engine is the external offline speech-to-text engine, treated as a black
// box with unspecified latency. It may emit zero or more progress events
// through the callback before returning.
type Engine interface {
	Transcribe(ctx context.Context, filePath string, progress func(Progress)) (*Result, error)
}

// Stats reports client counters for monitoring
type Stats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// Client hands encoded files to the external transcription engine and relays
// progress events to subscribers. The final resolution always carries exactly
// one terminal status, even when the engine emits no events at all.
type Client struct {
	engine Engine
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan Progress
	nextID int

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration
}

// NewClient creates a transcription client around the given engine
func NewClient(engine Engine, logger *slog.Logger) *Client {
	return &Client{
		engine: engine,
		logger: logger,
		subs:   make(map[int]chan Progress),
	}
}

// Subscribe registers a progress observer. Events are forwarded in emission
// order; delivery is best-effort and a slow observer loses intermediate
// events rather than stalling the engine. The returned func cancels the
// subscription.
func (c *Client) Subscribe() (<-chan Progress, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	ch := make(chan Progress, 16)
	c.subs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}

	return ch, cancel
}

// publish forwards one progress event to every subscriber
func (c *Client) publish(p Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- p:
		default:
			// Subscriber is behind; dropping an intermediate event is fine
		}
	}
}

// Transcribe runs the engine against the given audio file. Engine progress
// events are forwarded verbatim; a terminal complete or error event is
// always published so the absence of engine events cannot hang the caller.
func (c *Client) Transcribe(ctx context.Context, filePath string) (*Result, error) {
	c.mu.Lock()
	c.totalRequests++
	c.mu.Unlock()

	c.logger.Info("Starting transcription",
		slog.String("file_path", filePath),
	)

	start := time.Now()
	result, err := c.engine.Transcribe(ctx, filePath, c.publish)
	elapsed := time.Since(start)

	c.mu.Lock()
	if c.avgResponseTime == 0 {
		c.avgResponseTime = elapsed
	} else {
		c.avgResponseTime = (c.avgResponseTime + elapsed) / 2
	}
	c.mu.Unlock()

	if err != nil {
		c.mu.Lock()
		c.failedRequests++
		c.mu.Unlock()

		c.publish(Progress{Status: StatusError, Message: err.Error()})

		c.logger.Error("Transcription failed",
			slog.String("file_path", filePath),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed),
		)

		return nil, err
	}

	c.mu.Lock()
	c.successRequests++
	c.mu.Unlock()

	c.publish(Progress{Status: StatusComplete})

	c.logger.Info("Transcription completed",
		slog.String("file_path", filePath),
		slog.String("transcript_path", result.TranscriptPath),
		slog.Int("text_length", len(result.Text)),
		slog.Duration("elapsed", elapsed),
	)

	return result, nil
}

// GetStats returns current client statistics
func (c *Client) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		AvgResponseTime: c.avgResponseTime,
	}
}
