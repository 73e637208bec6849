package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/mrxnn/meetscribe/internal/metrics"
	"github.com/mrxnn/meetscribe/internal/store"
)

// Session runs transcript-grounded chat turns against the meeting store.
// The user message is appended before the endpoint is called and is kept
// even when the call fails; the assistant message is appended only after a
// successful response.
type Session struct {
	store   *store.Store
	client  *Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSession creates a chat session over the given store. metrics may be nil.
func NewSession(st *store.Store, client *Client, m *metrics.Metrics, logger *slog.Logger) *Session {
	return &Session{
		store:   st,
		client:  client,
		metrics: m,
		logger:  logger,
	}
}

// Ask runs one chat turn for the meeting: fetch the transcript (lazily),
// append the user message, query the endpoint with the prior messages in
// order, and append the assistant's answer. A failed request surfaces an
// APIError for this turn only.
func (s *Session) Ask(ctx context.Context, meetingID, userText string) (store.Message, error) {
	transcript, err := s.store.Transcript(ctx, meetingID)
	if err != nil {
		return store.Message{}, err
	}

	prior := s.store.Messages(meetingID)

	userMsg := store.Message{Role: store.RoleUser, Content: userText}
	if err := s.store.AppendMessage(meetingID, userMsg); err != nil {
		return store.Message{}, err
	}

	if s.metrics != nil {
		s.metrics.ChatTurns.Inc()
	}

	start := time.Now()
	answer, err := s.client.Complete(ctx, transcript, prior, userText)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.ChatDuration.Observe(elapsed.Seconds())
	}

	if err != nil {
		if s.metrics != nil {
			s.metrics.ChatFailures.Inc()
		}

		s.logger.Error("Chat turn failed",
			slog.String("meeting_id", meetingID),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed),
		)

		// The user's message stays; only this turn's answer is lost
		return store.Message{}, err
	}

	assistantMsg := store.Message{Role: store.RoleAssistant, Content: answer}
	if err := s.store.AppendMessage(meetingID, assistantMsg); err != nil {
		return store.Message{}, err
	}

	s.logger.Info("Chat turn completed",
		slog.String("meeting_id", meetingID),
		slog.Int("answer_length", len(answer)),
		slog.Duration("elapsed", elapsed),
	)

	return assistantMsg, nil
}
