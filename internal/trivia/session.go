package trivia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mindfuel/internal/domain"
)

var (
	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("trivia session not found")
	// ErrSessionCompleted is returned when answering a quiz that
	// already finished.
	ErrSessionCompleted = errors.New("trivia session already completed")
)

// QuestionSource provides question batches.
type QuestionSource interface {
	Fetch(ctx context.Context, amount int) ([]domain.Question, error)
}

// ScoreWriter persists the final score document. Satisfied by
// *docstore.Client.
type ScoreWriter interface {
	Put(ctx context.Context, path string, payload any) error
}

// ServiceConfig wires dependencies for the quiz service.
type ServiceConfig struct {
	Questions QuestionSource
	Sessions  SessionStore
	Scores    ScoreWriter
	BatchSize int
	Now       func() time.Time
}

// Service runs quiz sessions: Loading -> InProgress -> Submitting ->
// Completed, with auto-restart after a successful submit.
type Service struct {
	questions QuestionSource
	sessions  SessionStore
	scores    ScoreWriter
	batch     int
	now       func() time.Time
}

// NewService constructs the quiz service.
func NewService(cfg ServiceConfig) *Service {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 5
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		questions: cfg.Questions,
		sessions:  cfg.Sessions,
		scores:    cfg.Scores,
		batch:     batch,
		now:       now,
	}
}

// Start fetches a fresh question batch and opens a session at index 0,
// score 0. A fetch failure leaves nothing behind.
func (s *Service) Start(ctx context.Context, userID string) (Session, error) {
	questions, err := s.questions.Fetch(ctx, s.batch)
	if err != nil {
		return Session{}, fmt.Errorf("fetch questions: %w", err)
	}
	if len(questions) == 0 {
		return Session{}, errors.New("trivia API returned no questions")
	}
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Questions: questions,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// Result reports the outcome of one answer submission.
type Result struct {
	Correct   bool
	Score     int
	Index     int
	Total     int
	Completed bool
	// Persisted is false when the quiz finished but the score could
	// not be written; the session then stays on its final score
	// instead of restarting.
	Persisted bool
	// Current is the question now awaiting an answer, nil once the
	// quiz is completed.
	Current *domain.Question
	// Next is the auto-restarted session after a successful submit.
	Next *Session
}

// Answer checks the selected option against the current question,
// advances the session, and on the last question submits the final
// score and restarts.
func (s *Service) Answer(ctx context.Context, sessionID, option string) (Result, error) {
	sess, found, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return Result{}, ErrSessionNotFound
	}
	if sess.Completed || sess.Index >= len(sess.Questions) {
		return Result{}, ErrSessionCompleted
	}

	question := sess.Questions[sess.Index]
	correct := option == question.Correct
	if correct {
		sess.Score++
	}

	if sess.Index+1 < len(sess.Questions) {
		sess.Index++
		if err := s.sessions.Save(ctx, sess); err != nil {
			return Result{}, fmt.Errorf("save session: %w", err)
		}
		return Result{
			Correct: correct,
			Score:   sess.Score,
			Index:   sess.Index,
			Total:   len(sess.Questions),
			Current: &sess.Questions[sess.Index],
		}, nil
	}

	return s.submit(ctx, sess, correct)
}

// submit persists the final score and, on success, opens a fresh
// session for the same user. On a store failure the completed session
// is kept so the final score stays visible; it is not resubmittable.
func (s *Service) submit(ctx context.Context, sess Session, correct bool) (Result, error) {
	result := Result{
		Correct:   correct,
		Score:     sess.Score,
		Index:     sess.Index,
		Total:     len(sess.Questions),
		Completed: true,
	}
	payload := domain.TriviaResult{
		Score:     sess.Score,
		Timestamp: s.now().UTC(),
	}
	if err := s.scores.Put(ctx, "triviaScores/"+sess.UserID, payload); err != nil {
		slog.Warn("trivia score submit failed", "user_id", sess.UserID, "score", sess.Score, "err", err)
		sess.Completed = true
		if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
			slog.Warn("keep completed session failed", "session_id", sess.ID, "err", saveErr)
		}
		return result, nil
	}

	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		slog.Warn("delete completed session failed", "session_id", sess.ID, "err", err)
	}
	result.Persisted = true

	next, err := s.Start(ctx, sess.UserID)
	if err != nil {
		// The score is saved; the caller just has to start the next
		// quiz manually.
		slog.Warn("trivia auto-restart failed", "user_id", sess.UserID, "err", err)
		return result, nil
	}
	result.Next = &next
	return result, nil
}
