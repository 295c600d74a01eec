package assessment

// QuestionKind tags how a question is answered and graded.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindCoding         QuestionKind = "coding"
	KindFreeForm       QuestionKind = "free_form"
)

func (k QuestionKind) Valid() bool {
	switch k {
	case KindMultipleChoice, KindCoding, KindFreeForm:
		return true
	}
	return false
}

// TestCase is one input/expected pair for a coding question. Execution
// happens in an external runner; we only carry the data.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Hidden   bool   `json:"hidden,omitempty"`
}

// Question is the content-catalog record a QuestionRef points at.
type Question struct {
	ID            string       `json:"id"`
	Kind          QuestionKind `json:"kind"`
	Prompt        string       `json:"prompt"`
	Options       []string     `json:"options,omitempty"`        // multiple_choice
	CorrectOption int          `json:"correct_option,omitempty"` // multiple_choice
	TestCases     []TestCase   `json:"test_cases,omitempty"`     // coding
	Language      string       `json:"language,omitempty"`       // coding
	Category      string       `json:"category,omitempty"`
}

// QuestionRef places a catalog question inside one definition.
type QuestionRef struct {
	ID           string       `json:"id"`
	QuestionID   string       `json:"question_id"`
	Kind         QuestionKind `json:"kind"`
	Points       float64      `json:"points"`
	TimeLimitSec int          `json:"time_limit_sec,omitempty"`
	Position     int          `json:"position"`
	Category     string       `json:"category,omitempty"` // overrides the definition category
}

// Definition is a reusable assessment blueprint (exam or mock
// interview). Title is unique across all definitions. Session activity
// never mutates a definition.
type Definition struct {
	ID                  string        `json:"id"`
	Title               string        `json:"title"`
	Description         string        `json:"description,omitempty"`
	Category            string        `json:"category,omitempty"`
	Questions           []QuestionRef `json:"questions"` // ordered by Position
	QuestionCount       int           `json:"question_count"`
	PassingScorePercent int           `json:"passing_score_percent"`
	DurationSec         int           `json:"duration_sec,omitempty"`
	Active              bool          `json:"active"`
	Public              bool          `json:"public"`
	AuthorID            string        `json:"author_id,omitempty"`
	CreatedAt           int64         `json:"created_at,omitempty"`
}

// MaxScore is the sum of all question points.
func (d Definition) MaxScore() float64 {
	total := 0.0
	for _, q := range d.Questions {
		total += q.Points
	}
	return total
}

// QuestionRefByID returns the ref with the given id, if the definition
// contains it.
func (d Definition) QuestionRefByID(refID string) (QuestionRef, bool) {
	for _, q := range d.Questions {
		if q.ID == refID {
			return q, true
		}
	}
	return QuestionRef{}, false
}

// Session states. completed and cancelled are terminal.
type SessionState string

const (
	StateScheduled  SessionState = "scheduled"
	StateInProgress SessionState = "in_progress"
	StatePaused     SessionState = "paused"
	StateCompleted  SessionState = "completed"
	StateCancelled  SessionState = "cancelled"
)

func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// allowedTransitions is the lifecycle graph. completed is absent on
// purpose: it is only entered through finalize.
var allowedTransitions = map[SessionState][]SessionState{
	StateScheduled:  {StateInProgress, StateCancelled},
	StateInProgress: {StatePaused, StateCancelled},
	StatePaused:     {StateInProgress, StateCancelled},
}

// CanTransition reports whether from → to is a legal lifecycle edge.
func CanTransition(from, to SessionState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AnswerStatus is the grading state of a single answer.
type AnswerStatus string

const (
	AnswerUngraded      AnswerStatus = "ungraded"
	AnswerGraded        AnswerStatus = "graded"
	AnswerPendingReview AnswerStatus = "pending_review"
)

// Answer is one recorded response inside a session. Raw fields are
// mutable (last write wins) until the session is finalized; grading
// fields are written by finalize or manual grading only.
type Answer struct {
	QuestionRefID  string `json:"question_ref_id"`
	SelectedOption *int   `json:"selected_option,omitempty"` // multiple_choice
	Text           string `json:"text,omitempty"`            // coding source or free-form text
	TimeSpentSec   int    `json:"time_spent_sec"`
	UpdatedAt      int64  `json:"updated_at"`

	Status       AnswerStatus `json:"status"`
	Correct      bool         `json:"correct"`
	PointsEarned float64      `json:"points_earned"`
}

// Session is one user's attempt at a definition.
type Session struct {
	ID           string       `json:"id"`
	DefinitionID string       `json:"definition_id"`
	UserID       string       `json:"user_id"`
	State        SessionState `json:"state"`
	ScheduledAt  int64        `json:"scheduled_at,omitempty"`
	StartedAt    int64        `json:"started_at"`
	ResumedAt    int64        `json:"resumed_at,omitempty"` // last entry into in_progress
	EndedAt      int64        `json:"ended_at,omitempty"`
	ElapsedSec   int          `json:"elapsed_sec"`
	// MaxScore is snapshotted at creation so later definition edits do
	// not change an in-flight session's scoring ceiling.
	MaxScore          float64           `json:"max_score"`
	LastQuestionIndex int               `json:"last_question_index"`
	Answers           map[string]Answer `json:"answers"` // questionRefID -> Answer
	CreatedAt         int64             `json:"created_at,omitempty"`
}

// CategoryScore is one row of a per-category breakdown.
type CategoryScore struct {
	Earned float64 `json:"earned"`
	Max    float64 `json:"max"`
}

// Result is the finalized outcome of one completed session. It is
// written once at finalization; the only permitted rewrite is manual
// grading of pending answers.
type Result struct {
	SessionID         string                   `json:"session_id"`
	DefinitionID      string                   `json:"definition_id"`
	UserID            string                   `json:"user_id"`
	TotalScore        float64                  `json:"total_score"`
	MaxScore          float64                  `json:"max_score"`
	Percentage        int                      `json:"percentage"`
	Passed            bool                     `json:"passed"`
	TimeSpentSec      int                      `json:"time_spent_sec"`
	TimeClamped       bool                     `json:"time_clamped,omitempty"`
	HasPendingGrading bool                     `json:"has_pending_grading"`
	Categories        map[string]CategoryScore `json:"categories"`
	CreatedAt         int64                    `json:"created_at,omitempty"`
}
