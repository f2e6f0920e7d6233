package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a role claim string to the closed Role set.
func ParseRole(role string) (Role, bool) {
	switch role {
	case string(RoleUser):
		return RoleUser, true
	case string(RoleAdmin):
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Provenance records which system owns a book record. Only store
// records may be edited or deleted.
type Provenance string

const (
	ProvenanceStore    Provenance = "store"
	ProvenanceExternal Provenance = "external"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type Book struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	Price       string     `json:"price"`
	Content     string     `json:"content"`
	PDFURL      string     `json:"pdfUrl,omitempty"`
	Provenance  Provenance `json:"source"`
}

type Quote struct {
	Text   string `json:"q"`
	Author string `json:"a"`
}

type Question struct {
	Prompt  string   `json:"question"`
	Correct string   `json:"correct"`
	Options []string `json:"options"`
}

// TriviaResult is written once per completed quiz, replacing any
// prior score for the user.
type TriviaResult struct {
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}
