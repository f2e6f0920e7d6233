package trivia

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"mindfuel/internal/domain"
)

type fakeQuestions struct {
	batches [][]domain.Question
	calls   int
	err     error
}

func (f *fakeQuestions) Fetch(_ context.Context, _ int) ([]domain.Question, error) {
	if f.err != nil {
		return nil, f.err
	}
	batch := f.batches[f.calls%len(f.batches)]
	f.calls++
	return batch, nil
}

type fakeScores struct {
	paths    []string
	payloads []any
	err      error
}

func (f *fakeScores) Put(_ context.Context, path string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	f.payloads = append(f.payloads, payload)
	return nil
}

func fiveQuestions() []domain.Question {
	qs := make([]domain.Question, 5)
	for i := range qs {
		qs[i] = domain.Question{
			Prompt:  "q",
			Correct: "right",
			Options: []string{"wrong1", "right", "wrong2", "wrong3"},
		}
	}
	return qs
}

func TestPerfectRunPersistsScoreAndRestarts(t *testing.T) {
	ctx := context.Background()
	questions := &fakeQuestions{batches: [][]domain.Question{fiveQuestions()}}
	scores := &fakeScores{}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(ServiceConfig{
		Questions: questions,
		Sessions:  NewMemorySessionStore(),
		Scores:    scores,
		BatchSize: 5,
		Now:       func() time.Time { return at },
	})

	sess, err := svc.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Index != 0 || sess.Score != 0 {
		t.Fatalf("fresh session index/score = %d/%d", sess.Index, sess.Score)
	}

	var result Result
	for i := 0; i < 5; i++ {
		result, err = svc.Answer(ctx, sess.ID, "right")
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if !result.Correct {
			t.Fatalf("answer %d not counted correct", i)
		}
		if result.Score != i+1 {
			t.Fatalf("score after answer %d = %d, want %d", i, result.Score, i+1)
		}
	}

	if !result.Completed || !result.Persisted {
		t.Fatalf("final result completed/persisted = %v/%v", result.Completed, result.Persisted)
	}
	if result.Score != 5 {
		t.Fatalf("final score = %d, want 5", result.Score)
	}
	if len(scores.paths) != 1 || scores.paths[0] != "triviaScores/user-1" {
		t.Fatalf("score paths = %v", scores.paths)
	}
	saved, ok := scores.payloads[0].(domain.TriviaResult)
	if !ok {
		t.Fatalf("payload type = %T", scores.payloads[0])
	}
	if saved.Score != 5 || !saved.Timestamp.Equal(at) {
		t.Fatalf("saved = %+v", saved)
	}
	if result.Next == nil {
		t.Fatal("expected auto-restarted session")
	}
	if result.Next.Index != 0 || result.Next.Score != 0 {
		t.Fatalf("restarted session index/score = %d/%d", result.Next.Index, result.Next.Score)
	}
	if result.Next.ID == sess.ID {
		t.Fatal("restarted session reuses old id")
	}
	if questions.calls != 2 {
		t.Fatalf("question fetches = %d, want 2 (initial + restart)", questions.calls)
	}
}

func TestScoreBoundedByQuestionCount(t *testing.T) {
	ctx := context.Background()
	svc := NewService(ServiceConfig{
		Questions: &fakeQuestions{batches: [][]domain.Question{fiveQuestions()}},
		Sessions:  NewMemorySessionStore(),
		Scores:    &fakeScores{},
	})

	sess, err := svc.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var result Result
	for i := 0; i < 5; i++ {
		result, err = svc.Answer(ctx, sess.ID, "wrong1")
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if result.Score < 0 || result.Score > 5 {
			t.Fatalf("score %d out of bounds", result.Score)
		}
	}
	if result.Score != 0 {
		t.Fatalf("all-wrong final score = %d, want 0", result.Score)
	}
	if !result.Completed {
		t.Fatal("expected completion after last answer")
	}
}

func TestSubmitFailureKeepsCompletedSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	svc := NewService(ServiceConfig{
		Questions: &fakeQuestions{batches: [][]domain.Question{fiveQuestions()}},
		Sessions:  store,
		Scores:    &fakeScores{err: errors.New("store down")},
	})

	sess, err := svc.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var result Result
	for i := 0; i < 5; i++ {
		result, err = svc.Answer(ctx, sess.ID, "right")
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	if !result.Completed || result.Persisted {
		t.Fatalf("completed/persisted = %v/%v, want true/false", result.Completed, result.Persisted)
	}
	if result.Next != nil {
		t.Fatal("failed submit must not auto-restart")
	}
	kept, found, err := store.Get(ctx, sess.ID)
	if err != nil || !found {
		t.Fatalf("completed session gone: found=%v err=%v", found, err)
	}
	if !kept.Completed || kept.Score != 5 {
		t.Fatalf("kept session = %+v", kept)
	}
	if _, err := svc.Answer(ctx, sess.ID, "right"); !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("answer on completed session: %v, want ErrSessionCompleted", err)
	}
}

func TestAnswerUnknownSession(t *testing.T) {
	svc := NewService(ServiceConfig{
		Questions: &fakeQuestions{batches: [][]domain.Question{fiveQuestions()}},
		Sessions:  NewMemorySessionStore(),
		Scores:    &fakeScores{},
	})
	if _, err := svc.Answer(context.Background(), "nope", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestStartFetchFailureLeavesNoSession(t *testing.T) {
	store := NewMemorySessionStore()
	svc := NewService(ServiceConfig{
		Questions: &fakeQuestions{err: errors.New("api down")},
		Sessions:  store,
		Scores:    &fakeScores{},
	})
	if _, err := svc.Start(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error when fetch fails")
	}
	store.mu.RLock()
	defer store.mu.RUnlock()
	if len(store.sessions) != 0 {
		t.Fatalf("sessions = %d, want 0", len(store.sessions))
	}
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	redis := miniredis.RunT(t)
	store := NewRedisSessionStore(redis.Addr(), "", time.Minute)
	ctx := context.Background()

	sess := Session{
		ID:        "s1",
		UserID:    "user-1",
		Questions: fiveQuestions(),
		Index:     2,
		Score:     1,
	}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, found, err := store.Get(ctx, "s1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.Index != 2 || got.Score != 1 || len(got.Questions) != 5 {
		t.Fatalf("got = %+v", got)
	}
	if got.Questions[0].Correct != "right" {
		t.Fatal("correct answer lost in round trip")
	}

	if _, found, _ := store.Get(ctx, "missing"); found {
		t.Fatal("expected found=false for unknown id")
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := store.Get(ctx, "s1"); found {
		t.Fatal("session survived delete")
	}

	// Session payloads are stored as JSON.
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save again: %v", err)
	}
	raw, err := redis.Get(redisKeyPrefix + "s1")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	var decoded Session
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("stored value not JSON: %v", err)
	}
}
