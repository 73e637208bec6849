package fsstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrxnn/meetscribe/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFS(t *testing.T) *FS {
	t.Helper()

	fs, err := New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return fs
}

func TestSaveAndRegisterRecording(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	path, err := fs.SaveEncodedAudio(ctx, []byte("RIFF-wav-bytes"))
	if err != nil {
		t.Fatalf("SaveEncodedAudio failed: %v", err)
	}

	if !strings.HasSuffix(path, ".wav") {
		t.Errorf("Expected .wav path, got %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Saved file unreadable: %v", err)
	}
	if string(data) != "RIFF-wav-bytes" {
		t.Errorf("Saved bytes differ: %q", data)
	}

	info, err := fs.RegisterRecording(ctx, path, "the transcript")
	if err != nil {
		t.Fatalf("RegisterRecording failed: %v", err)
	}

	wantID := strings.TrimSuffix(filepath.Base(path), ".wav")
	if info.ID != wantID {
		t.Errorf("Expected id %q from file name, got %q", wantID, info.ID)
	}
	if info.Title == "" {
		t.Error("Expected a derived title")
	}

	text, err := fs.ReadTranscript(ctx, info.ID)
	if err != nil {
		t.Fatalf("ReadTranscript failed: %v", err)
	}
	if text != "the transcript" {
		t.Errorf("Expected stored transcript, got %q", text)
	}
}

func TestListRecordings(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	if recordings, err := fs.ListRecordings(ctx); err != nil || len(recordings) != 0 {
		t.Fatalf("Expected empty listing, got %v, %v", recordings, err)
	}

	first, err := fs.SaveEncodedAudio(ctx, []byte("one"))
	if err != nil {
		t.Fatalf("SaveEncodedAudio failed: %v", err)
	}
	second, err := fs.SaveEncodedAudio(ctx, []byte("two"))
	if err != nil {
		t.Fatalf("SaveEncodedAudio failed: %v", err)
	}

	recordings, err := fs.ListRecordings(ctx)
	if err != nil {
		t.Fatalf("ListRecordings failed: %v", err)
	}
	if len(recordings) != 2 {
		t.Fatalf("Expected 2 recordings, got %d", len(recordings))
	}

	ids := map[string]bool{}
	for _, rec := range recordings {
		ids[rec.ID] = true
	}
	for _, path := range []string{first, second} {
		id := strings.TrimSuffix(filepath.Base(path), ".wav")
		if !ids[id] {
			t.Errorf("Recording %s missing from listing", id)
		}
	}
}

func TestReadTranscriptMissingIsEmpty(t *testing.T) {
	fs := newTestFS(t)

	text, err := fs.ReadTranscript(context.Background(), "never-registered")
	if err != nil {
		t.Fatalf("Expected no error for missing transcript, got %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty transcript, got %q", text)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	fs := newTestFS(t)

	// Missing file means empty history
	history, err := fs.LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("Expected empty history, got %d entries", len(history))
	}

	saved := map[string][]store.Message{
		"m1": {
			{Role: store.RoleUser, Content: "question"},
			{Role: store.RoleAssistant, Content: "answer"},
		},
	}
	if err := fs.SaveHistory(saved); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}

	loaded, err := fs.LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}

	messages := loaded["m1"]
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != store.RoleUser || messages[0].Content != "question" {
		t.Errorf("First message mismatch: %+v", messages[0])
	}
	if messages[1].Role != store.RoleAssistant || messages[1].Content != "answer" {
		t.Errorf("Second message mismatch: %+v", messages[1])
	}
}

func TestRegisterRecordingMissingFile(t *testing.T) {
	fs := newTestFS(t)

	_, err := fs.RegisterRecording(context.Background(), filepath.Join(fs.Root(), "recordings", "nope.wav"), "t")
	if err == nil {
		t.Error("Expected error registering a missing recording")
	}
}
