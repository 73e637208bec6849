package capture

import (
	"sync"
)

// TrackKind distinguishes audio and video tracks within a captured stream.
type TrackKind int

const (
	KindAudio TrackKind = iota
	KindVideo
)

// String returns a human-readable track kind
func (k TrackKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Track represents a single live media track. Audio tracks deliver frames of
// float32 samples in the range [-1.0, 1.0] over the Frames channel. Done is
// closed when the track is stopped; no frames arrive after that.
type Track struct {
	kind   TrackKind
	frames chan []float32
	done   chan struct{}

	stopOnce sync.Once
	onStop   func()
}

// NewTrack creates a track of the given kind. onStop runs exactly once when
// the track is stopped; it releases the underlying device handle.
func NewTrack(kind TrackKind, bufferFrames int, onStop func()) *Track {
	if bufferFrames < 1 {
		bufferFrames = 1
	}
	return &Track{
		kind:   kind,
		frames: make(chan []float32, bufferFrames),
		done:   make(chan struct{}),
		onStop: onStop,
	}
}

// Kind returns the track kind
func (t *Track) Kind() TrackKind {
	return t.kind
}

// Frames returns the live sample frame channel for audio tracks
func (t *Track) Frames() <-chan []float32 {
	return t.frames
}

// Done is closed when the track has been stopped
func (t *Track) Done() <-chan struct{} {
	return t.done
}

// Push delivers a frame of samples to the track. It reports false once the
// track has been stopped; frames pushed after stop are dropped.
func (t *Track) Push(frame []float32) bool {
	select {
	case <-t.done:
		return false
	default:
	}

	select {
	case t.frames <- frame:
		return true
	case <-t.done:
		return false
	}
}

// Stop ends the track and releases the underlying device handle. Safe to
// call multiple times.
func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		if t.onStop != nil {
			t.onStop()
		}
	})
}

// Stopped reports whether the track has been stopped
func (t *Track) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Stream represents a live media stream composed of one or more tracks
type Stream struct {
	id     string
	mu     sync.RWMutex
	tracks []*Track
}

// NewStream creates a stream from the given tracks
func NewStream(id string, tracks ...*Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

// ID returns the stream identifier
func (s *Stream) ID() string {
	return s.id
}

// Tracks returns all tracks in the stream
func (s *Stream) Tracks() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// AudioTracks returns the audio tracks in the stream
func (s *Stream) AudioTracks() []*Track {
	return s.tracksOfKind(KindAudio)
}

// VideoTracks returns the video tracks in the stream
func (s *Stream) VideoTracks() []*Track {
	return s.tracksOfKind(KindVideo)
}

func (s *Stream) tracksOfKind(kind TrackKind) []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Track
	for _, t := range s.tracks {
		if t.kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// removeVideoTracks stops and drops all video tracks from the stream
func (s *Stream) removeVideoTracks() {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tracks[:0]
	for _, t := range s.tracks {
		if t.kind == KindVideo {
			t.Stop()
			continue
		}
		kept = append(kept, t)
	}
	s.tracks = kept
}

// StopAll stops every track in the stream. Safe to call multiple times.
func (s *Stream) StopAll() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// Live reports whether any track in the stream is still running
func (s *Stream) Live() bool {
	for _, t := range s.Tracks() {
		if !t.Stopped() {
			return true
		}
	}
	return false
}
