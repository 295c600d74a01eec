package assessment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mockmate/mockmate-engine/internal/grading"
)

// EventRecorder is the audit sink for finalize/duplicate events.
// Appends are best-effort; a failure never fails the operation.
type EventRecorder interface {
	Append(ctx context.Context, typ, key string, payload any) error
}

// Service owns the session lifecycle, answer recording, and result
// aggregation. All mutation of a session is serialized per session id.
type Service struct {
	store  Store
	grader grading.Gradable
	events EventRecorder
	log    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type ServiceOption func(*Service)

func WithEvents(e EventRecorder) ServiceOption { return func(s *Service) { s.events = e } }
func WithLogger(l *zap.Logger) ServiceOption   { return func(s *Service) { s.log = l } }

func NewService(store Store, grader grading.Gradable, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		grader: grader,
		log:    zap.NewNop(),
		locks:  map[string]*sync.Mutex{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// sessionLock returns the mutex serializing mutation of one session.
func (s *Service) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// --- Authoring ---

// CreateDefinition validates and stores a new definition. Question ref
// ids and positions are assigned here; the question count is derived
// rather than trusted from the caller.
func (s *Service) CreateDefinition(ctx context.Context, d Definition) (Definition, error) {
	if d.Title == "" {
		return Definition{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if d.PassingScorePercent < 0 || d.PassingScorePercent > 100 {
		return Definition{}, fmt.Errorf("%w: passing score must be 0-100", ErrValidation)
	}
	if d.DurationSec < 0 {
		return Definition{}, fmt.Errorf("%w: duration must be non-negative", ErrValidation)
	}
	seen := map[string]bool{}
	for i := range d.Questions {
		q := &d.Questions[i]
		if !q.Kind.Valid() {
			return Definition{}, fmt.Errorf("%w: unknown question kind %q", ErrValidation, q.Kind)
		}
		if q.Points < 0 || q.TimeLimitSec < 0 {
			return Definition{}, fmt.Errorf("%w: question points and time limit must be non-negative", ErrValidation)
		}
		key := q.QuestionID + "|" + string(q.Kind)
		if seen[key] {
			return Definition{}, fmt.Errorf("%w: question %s appears twice", ErrValidation, q.QuestionID)
		}
		seen[key] = true
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.Position = i
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.QuestionCount = len(d.Questions)
	d.CreatedAt = time.Now().Unix()
	if err := s.store.PutDefinition(ctx, d); err != nil {
		return Definition{}, err
	}
	return d, nil
}

// CreateQuestion stores a catalog question.
func (s *Service) CreateQuestion(ctx context.Context, q Question) (Question, error) {
	if !q.Kind.Valid() {
		return Question{}, fmt.Errorf("%w: unknown question kind %q", ErrValidation, q.Kind)
	}
	if q.Kind == KindMultipleChoice {
		if len(q.Options) < 2 {
			return Question{}, fmt.Errorf("%w: multiple choice needs at least two options", ErrValidation)
		}
		if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
			return Question{}, fmt.Errorf("%w: correct option out of range", ErrValidation)
		}
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if err := s.store.PutQuestion(ctx, q); err != nil {
		return Question{}, err
	}
	return q, nil
}

// --- Session lifecycle ---

// CreateSession starts a new attempt. With no scheduled time the
// session is immediately in_progress; otherwise it waits in scheduled.
// The definition's max score is snapshotted so later edits never change
// an in-flight session's scoring ceiling.
func (s *Service) CreateSession(ctx context.Context, userID, definitionID string, scheduledAt *time.Time) (Session, error) {
	def, err := s.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return Session{}, err
	}
	now := time.Now()
	sess := Session{
		ID:           uuid.NewString(),
		DefinitionID: definitionID,
		UserID:       userID,
		State:        StateInProgress,
		StartedAt:    now.Unix(),
		ResumedAt:    now.Unix(),
		MaxScore:     def.MaxScore(),
		Answers:      map[string]Answer{},
		CreatedAt:    now.Unix(),
	}
	if scheduledAt != nil {
		sess.State = StateScheduled
		sess.ScheduledAt = scheduledAt.Unix()
		sess.StartedAt = scheduledAt.Unix()
		sess.ResumedAt = 0
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	s.log.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("definition_id", definitionID),
		zap.String("user_id", userID),
		zap.String("state", string(sess.State)))
	return sess, nil
}

// ResumeInfo restores client state after a reload mid-attempt.
type ResumeInfo struct {
	Session           Session           `json:"session"`
	LastQuestionIndex int               `json:"last_question_index"`
	Answers           map[string]Answer `json:"answers"`
	Resumed           bool              `json:"resumed"`
}

// ResumeOrCreate returns the caller's in_progress or paused session for
// the definition, or creates a fresh one. This is the only operation
// that may return an existing entity instead of creating one: a client
// reload must not lose progress or burn a second attempt.
func (s *Service) ResumeOrCreate(ctx context.Context, userID, definitionID string) (ResumeInfo, error) {
	sess, err := s.store.FindActiveSession(ctx, userID, definitionID)
	if err == nil {
		return ResumeInfo{
			Session:           sess,
			LastQuestionIndex: sess.LastQuestionIndex,
			Answers:           sess.Answers,
			Resumed:           true,
		}, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return ResumeInfo{}, err
	}
	created, err := s.CreateSession(ctx, userID, definitionID, nil)
	if err != nil {
		return ResumeInfo{}, err
	}
	return ResumeInfo{Session: created, Answers: created.Answers}, nil
}

// Transition moves a session along the lifecycle graph. completed is
// not reachable here; only Finalize enters it.
func (s *Service) Transition(ctx context.Context, sessionID string, target SessionState) (Session, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if !CanTransition(sess.State, target) {
		return Session{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.State, target)
	}
	now := time.Now().Unix()
	switch {
	case sess.State == StateInProgress && target == StatePaused:
		if sess.ResumedAt > 0 && now > sess.ResumedAt {
			sess.ElapsedSec += int(now - sess.ResumedAt)
		}
		sess.ResumedAt = 0
	case target == StateInProgress:
		sess.ResumedAt = now
		if sess.State == StateScheduled {
			sess.StartedAt = now
		}
	}
	sess.State = target
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// --- Answer recording ---

// AnswerInput is one raw answer submission.
type AnswerInput struct {
	SelectedOption *int   `json:"selected_option,omitempty"`
	Text           string `json:"text,omitempty"`
	TimeSpentSec   int    `json:"time_spent_sec"`
}

// RecordAnswer upserts the answer for one question of an in_progress
// session. Last write wins; no edit history is kept.
func (s *Service) RecordAnswer(ctx context.Context, sessionID, questionRefID string, in AnswerInput) (Answer, error) {
	if in.TimeSpentSec < 0 {
		return Answer{}, fmt.Errorf("%w: time spent must be non-negative", ErrValidation)
	}
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Answer{}, err
	}
	if sess.State != StateInProgress {
		return Answer{}, fmt.Errorf("%w: session is %s", ErrSessionNotActive, sess.State)
	}
	def, err := s.store.GetDefinition(ctx, sess.DefinitionID)
	if err != nil {
		return Answer{}, err
	}
	ref, ok := def.QuestionRefByID(questionRefID)
	if !ok {
		return Answer{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionRefID)
	}
	ans := Answer{
		QuestionRefID:  questionRefID,
		SelectedOption: in.SelectedOption,
		Text:           in.Text,
		TimeSpentSec:   in.TimeSpentSec,
		UpdatedAt:      time.Now().Unix(),
		Status:         AnswerUngraded,
	}
	if sess.Answers == nil {
		sess.Answers = map[string]Answer{}
	}
	sess.Answers[questionRefID] = ans
	if ref.Position > sess.LastQuestionIndex {
		sess.LastQuestionIndex = ref.Position
	}
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return Answer{}, err
	}
	return ans, nil
}

// --- Finalization ---

// Finalize grades every answer, aggregates the result, and completes
// the session atomically. Calling it again on a completed session
// returns the stored result unchanged.
func (s *Service) Finalize(ctx context.Context, sessionID string, endedAt time.Time) (Result, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	switch sess.State {
	case StateCompleted:
		return s.store.GetResult(ctx, sessionID)
	case StateInProgress, StatePaused:
		// fall through
	default:
		return Result{}, fmt.Errorf("%w: cannot finalize %s session", ErrInvalidTransition, sess.State)
	}

	def, err := s.store.GetDefinition(ctx, sess.DefinitionID)
	if err != nil {
		return Result{}, err
	}

	result, graded, err := s.score(ctx, def, sess, endedAt)
	if err != nil {
		return Result{}, err
	}

	sess.Answers = graded
	sess.State = StateCompleted
	sess.EndedAt = endedAt.Unix()
	if sess.ResumedAt > 0 && endedAt.Unix() > sess.ResumedAt {
		sess.ElapsedSec += int(endedAt.Unix() - sess.ResumedAt)
	}
	if err := s.store.FinalizeSession(ctx, sess, result); err != nil {
		return Result{}, err
	}
	s.log.Info("session finalized",
		zap.String("session_id", sessionID),
		zap.Float64("total_score", result.TotalScore),
		zap.Int("percentage", result.Percentage),
		zap.Bool("passed", result.Passed),
		zap.Bool("pending_grading", result.HasPendingGrading))
	s.appendEvent(ctx, "session_completed", sessionID, result)
	return result, nil
}

// score is the pure aggregation step: grade every question of the
// definition against the session's answers. It touches no state, so a
// failed finalize can safely re-run it.
func (s *Service) score(ctx context.Context, def Definition, sess Session, endedAt time.Time) (Result, map[string]Answer, error) {
	graded := make(map[string]Answer, len(sess.Answers))
	for k, v := range sess.Answers {
		graded[k] = v
	}

	total := 0.0
	pendingPoints := 0.0
	hasPending := false
	categories := map[string]CategoryScore{}

	for _, ref := range def.Questions {
		cat := ref.Category
		if cat == "" {
			cat = def.Category
		}
		if cat == "" {
			cat = "general"
		}
		cs := categories[cat]
		cs.Max += ref.Points

		ans, answered := sess.Answers[ref.ID]
		if !answered {
			categories[cat] = cs
			continue
		}

		q, err := s.store.GetQuestion(ctx, ref.QuestionID)
		if err != nil {
			return Result{}, nil, fmt.Errorf("resolve question %s: %w", ref.QuestionID, err)
		}
		out, err := s.grader.Grade(ctx, gradingView(ref, q), grading.Response{
			SelectedOption: ans.SelectedOption,
			Text:           ans.Text,
		})
		if err != nil {
			return Result{}, nil, fmt.Errorf("grade question %s: %w", ref.ID, err)
		}

		ans.PointsEarned = out.Points
		ans.Correct = out.Correct
		if out.Pending {
			ans.Status = AnswerPendingReview
			hasPending = true
			pendingPoints += ref.Points
		} else {
			ans.Status = AnswerGraded
		}
		graded[ref.ID] = ans

		total += out.Points
		cs.Earned += out.Points
		categories[cat] = cs
	}

	timeSpent := endedAt.Unix() - sess.StartedAt
	clamped := false
	if timeSpent < 0 {
		timeSpent = 0
		clamped = true
	}

	result := Result{
		SessionID:         sess.ID,
		DefinitionID:      def.ID,
		UserID:            sess.UserID,
		TotalScore:        total,
		MaxScore:          sess.MaxScore,
		TimeSpentSec:      int(timeSpent),
		TimeClamped:       clamped,
		HasPendingGrading: hasPending,
		Categories:        categories,
		CreatedAt:         time.Now().Unix(),
	}
	result.Percentage = percentage(total, sess.MaxScore-pendingPoints)
	result.Passed = result.Percentage >= def.PassingScorePercent
	return result, graded, nil
}

// percentage rounds total/denom to a whole percent; a zero or negative
// denominator (empty definition, or everything pending) is 0 rather
// than a division fault.
func percentage(total, denom float64) int {
	if denom <= 0 {
		return 0
	}
	return int(math.Round(total / denom * 100))
}

func gradingView(ref QuestionRef, q Question) grading.Q {
	cases := make([]grading.TestCase, 0, len(q.TestCases))
	for _, tc := range q.TestCases {
		cases = append(cases, grading.TestCase{Input: tc.Input, Expected: tc.Expected})
	}
	return grading.Q{
		Kind:          string(ref.Kind),
		Points:        ref.Points,
		CorrectOption: q.CorrectOption,
		TestCases:     cases,
		Language:      q.Language,
	}
}

// --- Results ---

func (s *Service) GetResult(ctx context.Context, sessionID string) (Result, error) {
	return s.store.GetResult(ctx, sessionID)
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

func (s *Service) ListSessions(ctx context.Context, opts SessionListOpts) ([]Session, error) {
	return s.store.ListSessions(ctx, opts)
}

func (s *Service) GetDefinition(ctx context.Context, id string) (Definition, error) {
	return s.store.GetDefinition(ctx, id)
}

func (s *Service) GetQuestion(ctx context.Context, id string) (Question, error) {
	return s.store.GetQuestion(ctx, id)
}

func (s *Service) ListDefinitions(ctx context.Context, limit, offset int) ([]DefinitionSummary, error) {
	return s.store.ListDefinitions(ctx, limit, offset)
}

// ApplyManualGrades assigns points to pending-review answers of a
// completed session and re-aggregates its result. This is the only
// sanctioned rewrite of a Result.
func (s *Service) ApplyManualGrades(ctx context.Context, sessionID string, grades map[string]float64, gradedBy string) (Result, error) {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if sess.State != StateCompleted {
		return Result{}, fmt.Errorf("%w: session not completed", ErrInvalidTransition)
	}
	def, err := s.store.GetDefinition(ctx, sess.DefinitionID)
	if err != nil {
		return Result{}, err
	}
	prev, err := s.store.GetResult(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}

	for refID, points := range grades {
		ans, ok := sess.Answers[refID]
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, refID)
		}
		if ans.Status != AnswerPendingReview {
			return Result{}, fmt.Errorf("%w: answer %s is not pending review", ErrValidation, refID)
		}
		ref, ok := def.QuestionRefByID(refID)
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, refID)
		}
		if points < 0 {
			points = 0
		}
		if points > ref.Points {
			points = ref.Points
		}
		ans.PointsEarned = points
		ans.Correct = points == ref.Points
		ans.Status = AnswerGraded
		ans.UpdatedAt = time.Now().Unix()
		sess.Answers[refID] = ans
	}

	// Re-aggregate from the stored answers; graded points are now in
	// the answer map, so no strategies re-run.
	total := 0.0
	pendingPoints := 0.0
	hasPending := false
	categories := map[string]CategoryScore{}
	for _, ref := range def.Questions {
		cat := ref.Category
		if cat == "" {
			cat = def.Category
		}
		if cat == "" {
			cat = "general"
		}
		cs := categories[cat]
		cs.Max += ref.Points
		if ans, ok := sess.Answers[ref.ID]; ok {
			if ans.Status == AnswerPendingReview {
				hasPending = true
				pendingPoints += ref.Points
			}
			total += ans.PointsEarned
			cs.Earned += ans.PointsEarned
		}
		categories[cat] = cs
	}

	result := prev
	result.TotalScore = total
	result.HasPendingGrading = hasPending
	result.Categories = categories
	result.Percentage = percentage(total, sess.MaxScore-pendingPoints)
	result.Passed = result.Percentage >= def.PassingScorePercent

	if err := s.store.UpdateResult(ctx, sess, result); err != nil {
		return Result{}, err
	}
	s.log.Info("manual grades applied",
		zap.String("session_id", sessionID),
		zap.String("graded_by", gradedBy),
		zap.Int("count", len(grades)))
	s.appendEvent(ctx, "manual_grades_applied", sessionID, result)
	return result, nil
}

func (s *Service) appendEvent(ctx context.Context, typ, key string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, typ, key, payload); err != nil {
		s.log.Warn("event append failed", zap.String("type", typ), zap.Error(err))
	}
}
