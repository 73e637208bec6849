package recorder

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mrxnn/meetscribe/internal/capture"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEncoder delivers canned chunks through the callback: some on start,
// the rest as a flush on stop.
type fakeEncoder struct {
	onStart [][]byte
	onStop  [][]byte

	emit     func([]byte)
	startErr error
}

func (e *fakeEncoder) Start(_ *capture.Stream, onChunk func([]byte)) error {
	if e.startErr != nil {
		return e.startErr
	}
	e.emit = onChunk
	for _, chunk := range e.onStart {
		onChunk(chunk)
	}
	return nil
}

func (e *fakeEncoder) Stop() error {
	for _, chunk := range e.onStop {
		e.emit(chunk)
	}
	return nil
}

func testStream() *capture.Stream {
	return capture.NewStream("test", capture.NewTrack(capture.KindAudio, 1, nil))
}

func TestRecorderPreservesChunkOrder(t *testing.T) {
	encoder := &fakeEncoder{
		onStart: [][]byte{[]byte("aa"), []byte("bb")},
		onStop:  [][]byte{[]byte("cc")},
	}

	r := New(encoder, "audio/webm;codecs=opus", testLogger())

	if err := r.Start(testStream()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	blob, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !bytes.Equal(blob.Data, []byte("aabbcc")) {
		t.Errorf("Expected chunks concatenated in arrival order, got %q", blob.Data)
	}

	if blob.MIMEType != "audio/webm;codecs=opus" {
		t.Errorf("Expected blob tagged with MIME type, got %q", blob.MIMEType)
	}
}

func TestRecorderFlushesOnStop(t *testing.T) {
	// All audio arrives only when the encoder flushes
	encoder := &fakeEncoder{onStop: [][]byte{[]byte("flushed")}}

	r := New(encoder, "audio/webm", testLogger())

	if err := r.Start(testStream()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	blob, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !bytes.Equal(blob.Data, []byte("flushed")) {
		t.Errorf("Expected flushed chunk in blob, got %q", blob.Data)
	}
}

func TestRecorderNoAudioCaptured(t *testing.T) {
	r := New(&fakeEncoder{}, "audio/webm", testLogger())

	if err := r.Start(testStream()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err := r.Stop()
	if !errors.Is(err, ErrNoAudioCaptured) {
		t.Errorf("Expected ErrNoAudioCaptured, got %v", err)
	}
}

func TestRecorderDropsChunksAfterStop(t *testing.T) {
	encoder := &fakeEncoder{onStart: [][]byte{[]byte("live")}}

	r := New(encoder, "audio/webm", testLogger())

	if err := r.Start(testStream()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// A straggler chunk after stop must not be accumulated
	encoder.emit([]byte("late"))

	stats := r.GetStats()
	if stats.Chunks != 0 || stats.TotalBytes != 0 {
		t.Errorf("Expected sealed buffer after stop, got %d chunks / %d bytes",
			stats.Chunks, stats.TotalBytes)
	}
}

func TestRecorderStopWithoutStart(t *testing.T) {
	r := New(&fakeEncoder{}, "audio/webm", testLogger())

	if _, err := r.Stop(); err == nil {
		t.Error("Expected error stopping a recorder that never started")
	}
}

func TestRecorderStartTwice(t *testing.T) {
	encoder := &fakeEncoder{onStart: [][]byte{[]byte("x")}}
	r := New(encoder, "audio/webm", testLogger())

	if err := r.Start(testStream()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := r.Start(testStream()); err == nil {
		t.Error("Expected error starting an already-running recorder")
	}
}
