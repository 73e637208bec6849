package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mrxnn/meetscribe/internal/metrics"
)

// Role identifies the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn. Messages are append-only per meeting and never
// reordered or individually deleted.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Meeting is a persisted meeting entry. Transcript stays empty until its
// first lazy fetch.
type Meeting struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	Transcript   string    `json:"transcript"`
	MessageCount int       `json:"message_count"`
	HasRecording bool      `json:"has_recording"`
}

// RecordingInfo describes an externally enumerated recording
type RecordingInfo struct {
	ID    string
	Title string
	Date  time.Time
}

// RecordingLister enumerates completed recordings; ids are assigned by this
// external layer.
type RecordingLister interface {
	ListRecordings(ctx context.Context) ([]RecordingInfo, error)
}

// TranscriptReader fetches the transcript text for a recording
type TranscriptReader interface {
	ReadTranscript(ctx context.Context, meetingID string) (string, error)
}

// HistoryStorage persists the full chat history mapping keyed by meeting id
type HistoryStorage interface {
	LoadHistory() (map[string][]Message, error)
	SaveHistory(history map[string][]Message) error
}

type meetingEntry struct {
	title        string
	date         time.Time
	messages     []Message
	transcript   string
	fetched      bool
	hasRecording bool
}

// Store is the process-wide persisted collection of meetings. It merges the
// externally enumerated recording list with locally persisted chat history
// and mediates between the recording pipeline and the chat subsystem.
type Store struct {
	recordings  RecordingLister
	transcripts TranscriptReader
	history     HistoryStorage
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu      sync.Mutex
	order   []string
	entries map[string]*meetingEntry
}

// New creates a meeting store. metrics may be nil.
func New(recordings RecordingLister, transcripts TranscriptReader, history HistoryStorage, m *metrics.Metrics, logger *slog.Logger) *Store {
	return &Store{
		recordings:  recordings,
		transcripts: transcripts,
		history:     history,
		metrics:     m,
		logger:      logger,
		entries:     make(map[string]*meetingEntry),
	}
}

// Load builds the meeting list, most recent first, by matching persisted
// chat histories against the enumerated recordings. Meetings referenced by
// chat history whose recording no longer exists stay displayable, but their
// transcript is permanently empty.
func (s *Store) Load(ctx context.Context) ([]Meeting, error) {
	recordings, err := s.recordings.ListRecordings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	history, err := s.history.LoadHistory()
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.entries = make(map[string]*meetingEntry, len(recordings))

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].Date.After(recordings[j].Date)
	})

	for _, rec := range recordings {
		s.entries[rec.ID] = &meetingEntry{
			title:        rec.Title,
			date:         rec.Date,
			messages:     history[rec.ID],
			hasRecording: true,
		}
		s.order = append(s.order, rec.ID)
	}

	// History entries whose recording disappeared remain displayable; their
	// transcript can never be fetched again.
	var orphans []string
	for id := range history {
		if _, ok := s.entries[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)

	for _, id := range orphans {
		s.entries[id] = &meetingEntry{
			title:    "Meeting " + id,
			messages: history[id],
			fetched:  true,
		}
		s.order = append(s.order, id)
	}

	if s.metrics != nil {
		s.metrics.MeetingsLoaded.Set(float64(len(s.order)))
	}

	s.logger.Info("Meeting store loaded",
		slog.Int("recordings", len(recordings)),
		slog.Int("orphaned_histories", len(orphans)),
	)

	return s.snapshotLocked(), nil
}

// AddRecording registers a freshly completed recording at the top of the
// list, with its transcript already known.
func (s *Store) AddRecording(info RecordingInfo, transcript string) Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[info.ID] = &meetingEntry{
		title:        info.Title,
		date:         info.Date,
		transcript:   transcript,
		fetched:      true,
		hasRecording: true,
	}
	s.order = append([]string{info.ID}, s.order...)

	if s.metrics != nil {
		s.metrics.MeetingsLoaded.Set(float64(len(s.order)))
	}

	return s.meetingLocked(info.ID)
}

// Meetings returns the current meeting list, most recent first
func (s *Store) Meetings() []Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Meeting returns one meeting by id
func (s *Store) Meeting(id string) (Meeting, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return Meeting{}, false
	}
	return s.meetingLocked(id), true
}

// Transcript returns the meeting's transcript, fetching it from the
// transcript reader exactly once per id and caching the result. Meetings
// without a backing recording always yield an empty transcript.
func (s *Store) Transcript(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("unknown meeting: %s", id)
	}

	if entry.fetched {
		transcript := entry.transcript
		s.mu.Unlock()
		return transcript, nil
	}
	s.mu.Unlock()

	text, err := s.transcripts.ReadTranscript(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript for %s: %w", id, err)
	}

	if s.metrics != nil {
		s.metrics.TranscriptLoads.Inc()
	}

	s.mu.Lock()
	entry.transcript = text
	entry.fetched = true
	s.mu.Unlock()

	return text, nil
}

// Messages returns the meeting's chat history in chronological order
func (s *Store) Messages(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil
	}

	out := make([]Message, len(entry.messages))
	copy(out, entry.messages)
	return out
}

// AppendMessage appends one message to the meeting's history and persists
// the full history mapping immediately (write-through, no batching).
func (s *Store) AppendMessage(id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("unknown meeting: %s", id)
	}

	entry.messages = append(entry.messages, msg)

	if err := s.history.SaveHistory(s.historyLocked()); err != nil {
		return fmt.Errorf("failed to persist chat history: %w", err)
	}

	if s.metrics != nil {
		s.metrics.MessagesAppended.Inc()
	}

	return nil
}

// historyLocked builds the full persistable history snapshot
func (s *Store) historyLocked() map[string][]Message {
	history := make(map[string][]Message, len(s.entries))
	for id, entry := range s.entries {
		if len(entry.messages) > 0 {
			history[id] = entry.messages
		}
	}
	return history
}

func (s *Store) snapshotLocked() []Meeting {
	meetings := make([]Meeting, 0, len(s.order))
	for _, id := range s.order {
		meetings = append(meetings, s.meetingLocked(id))
	}
	return meetings
}

func (s *Store) meetingLocked(id string) Meeting {
	entry := s.entries[id]
	return Meeting{
		ID:           id,
		Title:        entry.title,
		Date:         entry.date,
		Transcript:   entry.transcript,
		MessageCount: len(entry.messages),
		HasRecording: entry.hasRecording,
	}
}
