package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sentinel errors for device acquisition failures
var (
	// ErrNoSourceAvailable indicates no capturable system source was enumerated
	ErrNoSourceAvailable = errors.New("no capturable source available")
	// ErrPermissionDenied indicates the user or OS refused device access
	ErrPermissionDenied = errors.New("device access denied")
)

// Source describes a capturable system source. Sources are enumerated by the
// desktop collaborator and used only to pick a capture target.
type Source struct {
	ID        string
	Name      string
	Thumbnail []byte
}

// Devices is the collaborator interface to the platform capture layer. It is
// injected so tests can substitute synthetic streams with deterministic
// frame timings.
type Devices interface {
	// ListCaptureSources enumerates capturable system sources
	ListCaptureSources(ctx context.Context) ([]Source, error)
	// OpenSourceStream opens combined audio+video capture of a source.
	// The capture API requires video even though only audio is wanted.
	OpenSourceStream(ctx context.Context, sourceID string) (*Stream, error)
	// OpenMicStream opens microphone-only audio capture
	OpenMicStream(ctx context.Context) (*Stream, error)
}

// Pair holds the un-mixed system and microphone streams. Mixing is the
// mixer package's job.
type Pair struct {
	System *Stream
	Mic    *Stream
}

// StopAll stops every track in both streams
func (p *Pair) StopAll() {
	if p.System != nil {
		p.System.StopAll()
	}
	if p.Mic != nil {
		p.Mic.StopAll()
	}
}

// Acquirer obtains raw media streams from the platform capture layer and
// isolates source selection and video-track discard.
type Acquirer struct {
	devices Devices
	logger  *slog.Logger
}

// NewAcquirer creates a stream acquirer backed by the given device layer
func NewAcquirer(devices Devices, logger *slog.Logger) *Acquirer {
	return &Acquirer{
		devices: devices,
		logger:  logger,
	}
}

// AcquireSystemAndMic obtains a system-audio stream and a microphone stream,
// un-mixed. It prefers a source whose name contains a "screen" token, falls
// back to the first enumerated source, and discards video tracks from the
// system stream before returning.
func (a *Acquirer) AcquireSystemAndMic(ctx context.Context) (*Pair, error) {
	sources, err := a.devices.ListCaptureSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture sources: %w", err)
	}

	if len(sources) == 0 {
		return nil, ErrNoSourceAvailable
	}

	source := pickSource(sources)

	a.logger.Info("Acquiring system audio stream",
		slog.String("source_id", source.ID),
		slog.String("source_name", source.Name),
	)

	system, err := a.devices.OpenSourceStream(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open source stream %s: %w", source.ID, err)
	}

	// The capture API only grants source audio alongside video. Stop the
	// video tracks before anything else touches the stream so the returned
	// object carries audio tracks only.
	system.removeVideoTracks()

	if len(system.AudioTracks()) == 0 {
		system.StopAll()
		return nil, fmt.Errorf("source %s: %w", source.ID, ErrNoSourceAvailable)
	}

	mic, err := a.AcquireMic(ctx)
	if err != nil {
		system.StopAll()
		return nil, err
	}

	return &Pair{System: system, Mic: mic}, nil
}

// AcquireMic obtains a microphone-only audio stream
func (a *Acquirer) AcquireMic(ctx context.Context) (*Stream, error) {
	mic, err := a.devices.OpenMicStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open microphone stream: %w", err)
	}

	a.logger.Info("Acquired microphone stream",
		slog.String("stream_id", mic.ID()),
		slog.Int("audio_tracks", len(mic.AudioTracks())),
	)

	return mic, nil
}

// pickSource prefers a source whose name matches a case-insensitive "screen"
// token, falling back to the first available source.
func pickSource(sources []Source) Source {
	for _, s := range sources {
		if strings.Contains(strings.ToLower(s.Name), "screen") {
			return s
		}
	}
	return sources[0]
}
