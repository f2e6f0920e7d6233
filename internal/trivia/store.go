package trivia

import (
	"context"

	"mindfuel/internal/domain"
)

// Session is one in-flight quiz: the question batch plus the current
// position and running score. It lives only in the session store and
// is destroyed when the quiz completes or expires.
type Session struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Questions []domain.Question `json:"questions"`
	Index     int               `json:"index"`
	Score     int               `json:"score"`
	Completed bool              `json:"completed"`
}

// SessionStore persists in-flight quiz sessions.
type SessionStore interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, bool, error)
	Delete(ctx context.Context, id string) error
}
