package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mrxnn/meetscribe/internal/store"
)

const (
	recordingsDir   = "recordings"
	transcriptsDir  = "transcripts"
	historyFileName = "chat_history.json"
)

// FS persists recordings, transcripts, and chat history under a single data
// directory:
//
//	<root>/recordings/<id>.wav
//	<root>/transcripts/<id>.txt
//	<root>/chat_history.json
//
// Recording ids are assigned here, at save time.
type FS struct {
	root   string
	logger *slog.Logger
}

// New creates a filesystem store rooted at dir, creating the directory
// layout if needed.
func New(dir string, logger *slog.Logger) (*FS, error) {
	for _, sub := range []string{recordingsDir, transcriptsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", sub, err)
		}
	}

	return &FS{root: dir, logger: logger}, nil
}

// Root returns the data directory path
func (f *FS) Root() string {
	return f.root
}

// SaveEncodedAudio writes the WAV bytes under a freshly assigned recording id
// and returns the file path.
func (f *FS) SaveEncodedAudio(_ context.Context, data []byte) (string, error) {
	id := uuid.NewString()
	path := filepath.Join(f.root, recordingsDir, id+".wav")

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}

	f.logger.Info("Recording saved",
		slog.String("id", id),
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)

	return path, nil
}

// RegisterRecording stores the transcript next to a saved recording and
// returns the recording's metadata. The id is the recording file's name stem.
func (f *FS) RegisterRecording(_ context.Context, audioPath, transcript string) (store.RecordingInfo, error) {
	id := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))

	info, err := os.Stat(audioPath)
	if err != nil {
		return store.RecordingInfo{}, fmt.Errorf("recording file missing: %w", err)
	}

	transcriptPath := filepath.Join(f.root, transcriptsDir, id+".txt")
	if err := os.WriteFile(transcriptPath, []byte(transcript), 0o644); err != nil {
		return store.RecordingInfo{}, fmt.Errorf("failed to write transcript: %w", err)
	}

	date := info.ModTime()
	return store.RecordingInfo{
		ID:    id,
		Title: meetingTitle(date),
		Date:  date,
	}, nil
}

// ListRecordings enumerates saved recordings from the recordings directory
func (f *FS) ListRecordings(_ context.Context) ([]store.RecordingInfo, error) {
	entries, err := os.ReadDir(filepath.Join(f.root, recordingsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	var recordings []store.RecordingInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".wav")
		recordings = append(recordings, store.RecordingInfo{
			ID:    id,
			Title: meetingTitle(info.ModTime()),
			Date:  info.ModTime(),
		})
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].Date.After(recordings[j].Date)
	})

	return recordings, nil
}

// ReadTranscript returns the stored transcript for a recording. A missing
// transcript file yields empty text, not an error.
func (f *FS) ReadTranscript(_ context.Context, meetingID string) (string, error) {
	data, err := os.ReadFile(filepath.Join(f.root, transcriptsDir, meetingID+".txt"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return string(data), nil
}

// LoadHistory reads the persisted chat history mapping. A missing file is an
// empty history.
func (f *FS) LoadHistory() (map[string][]store.Message, error) {
	data, err := os.ReadFile(filepath.Join(f.root, historyFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]store.Message{}, nil
		}
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}

	history := make(map[string][]store.Message)
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse chat history: %w", err)
	}

	return history, nil
}

// SaveHistory writes the full chat history mapping atomically
func (f *FS) SaveHistory(history map[string][]store.Message) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode chat history: %w", err)
	}

	path := filepath.Join(f.root, historyFileName)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write chat history: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace chat history: %w", err)
	}

	return nil
}

// meetingTitle derives a display title from the recording time
func meetingTitle(t time.Time) string {
	return "Meeting " + t.Format("2006-01-02 15:04")
}
