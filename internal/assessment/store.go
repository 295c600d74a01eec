package assessment

import "context"

// SessionListOpts filters session listings.
type SessionListOpts struct {
	DefinitionID string
	UserID       string
	State        string
	Limit        int
	Offset       int
}

// DefinitionSummary is the listing row for definitions.
type DefinitionSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	QuestionCount int    `json:"question_count"`
	Active        bool   `json:"active"`
	Public        bool   `json:"public"`
	CreatedAt     int64  `json:"created_at"`
}

// Store is the persistence collaborator: definitions plus the question
// catalog, sessions with their answer maps, and finalized results.
// Implementations enforce title uniqueness on definitions and report a
// violation as ErrTitleConflict.
type Store interface {
	PutDefinition(ctx context.Context, d Definition) error
	GetDefinition(ctx context.Context, id string) (Definition, error)
	ListDefinitions(ctx context.Context, limit, offset int) ([]DefinitionSummary, error)
	ListDefinitionTitles(ctx context.Context) ([]string, error)

	PutQuestion(ctx context.Context, q Question) error
	GetQuestion(ctx context.Context, id string) (Question, error)

	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// FindActiveSession returns the in_progress or paused session for
	// (userID, definitionID), or ErrSessionNotFound.
	FindActiveSession(ctx context.Context, userID, definitionID string) (Session, error)
	UpdateSession(ctx context.Context, s Session) error
	ListSessions(ctx context.Context, opts SessionListOpts) ([]Session, error)

	// FinalizeSession persists the result and moves the session to
	// completed as one atomic unit.
	FinalizeSession(ctx context.Context, s Session, r Result) error
	// UpdateResult rewrites a result and its session's answer map after
	// manual grading. The session stays completed.
	UpdateResult(ctx context.Context, s Session, r Result) error
	GetResult(ctx context.Context, sessionID string) (Result, error)
}
