package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mrxnn/meetscribe/internal/store"
)

type staticLister struct {
	recordings []store.RecordingInfo
}

func (s *staticLister) ListRecordings(_ context.Context) ([]store.RecordingInfo, error) {
	return s.recordings, nil
}

type staticReader struct {
	transcript string
}

func (s *staticReader) ReadTranscript(_ context.Context, _ string) (string, error) {
	return s.transcript, nil
}

type memoryHistory struct {
	history map[string][]store.Message
}

func (m *memoryHistory) LoadHistory() (map[string][]store.Message, error) {
	if m.history == nil {
		return map[string][]store.Message{}, nil
	}
	return m.history, nil
}

func (m *memoryHistory) SaveHistory(history map[string][]store.Message) error {
	m.history = history
	return nil
}

func testStore(t *testing.T, transcript string) *store.Store {
	t.Helper()

	st := store.New(
		&staticLister{recordings: []store.RecordingInfo{
			{ID: "m1", Title: "Standup", Date: time.Now()},
		}},
		&staticReader{transcript: transcript},
		&memoryHistory{},
		nil,
		testLogger(),
	)

	if _, err := st.Load(context.Background()); err != nil {
		t.Fatalf("store load failed: %v", err)
	}
	return st
}

func TestAskAppendsBothMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionJSON("we discussed the roadmap")))
	}))
	defer srv.Close()

	st := testStore(t, "roadmap discussion transcript")
	sess := NewSession(st, testClient(t, srv.URL, 0), nil, testLogger())

	reply, err := sess.Ask(context.Background(), "m1", "what did we discuss?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if reply.Role != store.RoleAssistant || reply.Content != "we discussed the roadmap" {
		t.Errorf("Unexpected reply: %+v", reply)
	}

	messages := st.Messages("m1")
	if len(messages) != 2 {
		t.Fatalf("Expected user and assistant messages, got %d", len(messages))
	}
	if messages[0].Role != store.RoleUser || messages[1].Role != store.RoleAssistant {
		t.Errorf("Expected user then assistant, got %+v", messages)
	}
}

func TestAskKeepsUserMessageOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	st := testStore(t, "some transcript")
	sess := NewSession(st, testClient(t, srv.URL, 0), nil, testLogger())

	_, err := sess.Ask(context.Background(), "m1", "hello?")
	if err == nil {
		t.Fatal("Expected ask to fail")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("Expected APIError, got %T: %v", err, err)
	}

	messages := st.Messages("m1")
	if len(messages) != 1 {
		t.Fatalf("Expected only the user message kept, got %d messages", len(messages))
	}
	if messages[0].Role != store.RoleUser || messages[0].Content != "hello?" {
		t.Errorf("Expected user message preserved, got %+v", messages[0])
	}
}

func TestAskFailedTurnDoesNotPoisonNextTurn(t *testing.T) {
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(completionJSON("second time works")))
	}))
	defer srv.Close()

	st := testStore(t, "transcript")
	sess := NewSession(st, testClient(t, srv.URL, 0), nil, testLogger())

	if _, err := sess.Ask(context.Background(), "m1", "first"); err == nil {
		t.Fatal("Expected first turn to fail")
	}

	fail = false
	reply, err := sess.Ask(context.Background(), "m1", "second")
	if err != nil {
		t.Fatalf("Second turn failed: %v", err)
	}
	if reply.Content != "second time works" {
		t.Errorf("Unexpected reply: %q", reply.Content)
	}

	// first user msg, second user msg, assistant answer
	if got := len(st.Messages("m1")); got != 3 {
		t.Errorf("Expected 3 messages, got %d", got)
	}
}

func TestAskUnknownMeeting(t *testing.T) {
	st := testStore(t, "transcript")
	sess := NewSession(st, testClient(t, "http://127.0.0.1:0", 0), nil, testLogger())

	if _, err := sess.Ask(context.Background(), "nope", "hi"); err == nil {
		t.Error("Expected error for unknown meeting")
	}
}
