package assessment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mockmate/mockmate-engine/internal/assessment"
	"github.com/mockmate/mockmate-engine/internal/grading"
)

func newTestService(t *testing.T, opts ...grading.Option) (*assessment.Service, assessment.Store) {
	t.Helper()
	store := assessment.NewInMemoryStore()
	return assessment.NewService(store, grading.NewEngine(opts...)), store
}

// seedMCQDefinition creates three multiple-choice questions (2, 2 and 1
// points, correct option always 1) and a definition over them with a
// 60% passing score.
func seedMCQDefinition(t *testing.T, svc *assessment.Service) assessment.Definition {
	t.Helper()
	ctx := context.Background()
	points := []float64{2, 2, 1}
	categories := []string{"core", "core", ""}
	refs := make([]assessment.QuestionRef, 0, 3)
	for i, p := range points {
		q, err := svc.CreateQuestion(ctx, assessment.Question{
			Kind:          assessment.KindMultipleChoice,
			Prompt:        "pick the right one",
			Options:       []string{"a", "b", "c"},
			CorrectOption: 1,
		})
		if err != nil {
			t.Fatalf("create question: %v", err)
		}
		refs = append(refs, assessment.QuestionRef{
			QuestionID: q.ID,
			Kind:       assessment.KindMultipleChoice,
			Points:     p,
			Category:   categories[i],
		})
	}
	def, err := svc.CreateDefinition(ctx, assessment.Definition{
		Title:               "MCQ Screen " + t.Name(),
		PassingScorePercent: 60,
		Questions:           refs,
	})
	if err != nil {
		t.Fatalf("create definition: %v", err)
	}
	return def
}

func intp(n int) *int { return &n }

func TestScoringScenarioMCQ(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	def := seedMCQDefinition(t, svc)

	sess, err := svc.CreateSession(ctx, "alice", def.ID, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.State != assessment.StateInProgress {
		t.Fatalf("state = %s, want in_progress", sess.State)
	}
	if sess.MaxScore != 5 {
		t.Fatalf("max score snapshot = %v, want 5", sess.MaxScore)
	}

	// correct, incorrect, correct
	answers := []*int{intp(1), intp(0), intp(1)}
	for i, sel := range answers {
		if _, err := svc.RecordAnswer(ctx, sess.ID, def.Questions[i].ID, assessment.AnswerInput{
			SelectedOption: sel, TimeSpentSec: 30,
		}); err != nil {
			t.Fatalf("record answer %d: %v", i, err)
		}
	}

	result, err := svc.Finalize(ctx, sess.ID, time.Now())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.TotalScore != 3 {
		t.Fatalf("total = %v, want 3", result.TotalScore)
	}
	if result.MaxScore != 5 {
		t.Fatalf("max = %v, want 5", result.MaxScore)
	}
	if result.Percentage != 60 {
		t.Fatalf("percentage = %d, want 60", result.Percentage)
	}
	if !result.Passed {
		t.Fatalf("passed = false, want true at exactly the threshold")
	}
	if result.HasPendingGrading {
		t.Fatalf("pure MCQ result must not have pending grading")
	}

	// Per-category breakdown: q1+q2 in "core", q3 falls back to "general".
	core := result.Categories["core"]
	if core.Earned != 2 || core.Max != 4 {
		t.Fatalf("core = %+v, want earned 2 max 4", core)
	}
	general := result.Categories["general"]
	if general.Earned != 1 || general.Max != 1 {
		t.Fatalf("general = %+v, want earned 1 max 1", general)
	}

	// Total equals the sum of per-answer points.
	final, err := svc.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	sum := 0.0
	for _, a := range final.Answers {
		sum += a.PointsEarned
	}
	if sum != result.TotalScore {
		t.Fatalf("answer points sum %v != total %v", sum, result.TotalScore)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	def := seedMCQDefinition(t, svc)

	sess, err := svc.CreateSession(ctx, "bob", def.ID, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, sess.ID, def.Questions[0].ID, assessment.AnswerInput{SelectedOption: intp(1)}); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	first, err := svc.Finalize(ctx, sess.ID, time.Now())
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	second, err := svc.Finalize(ctx, sess.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if second.TotalScore != first.TotalScore ||
		second.Percentage != first.Percentage ||
		second.TimeSpentSec != first.TimeSpentSec ||
		second.CreatedAt != first.CreatedAt {
		t.Fatalf("second finalize returned a different result:\nfirst  %+v\nsecond %+v", first, second)
	}

	final, err := svc.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if final.State != assessment.StateCompleted {
		t.Fatalf("state = %s, want completed", final.State)
	}
}

func TestFinalizeClampsNegativeTimeSpent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	def := seedMCQDefinition(t, svc)

	sess, err := svc.CreateSession(ctx, "carol", def.ID, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	result, err := svc.Finalize(ctx, sess.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.TimeSpentSec != 0 {
		t.Fatalf("time spent = %d, want clamped to 0", result.TimeSpentSec)
	}
	if !result.TimeClamped {
		t.Fatalf("clamp flag not set")
	}
}

func TestFinalizeOnCancelledSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	def := seedMCQDefinition(t, svc)

	sess, err := svc.CreateSession(ctx, "dave", def.ID, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.Transition(ctx, sess.ID, assessment.StateCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Finalize(ctx, sess.ID, time.Now()); !errors.Is(err, assessment.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestResumeOrCreateReturnsExistingSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	def := seedMCQDefinition(t, svc)

	first, err := svc.ResumeOrCreate(ctx, "erin", def.ID)
	if err != nil {
		t.Fatalf("first resumeOrCreate: %v", err)
	}
	if first.Resumed {
		t.Fatalf("first call must create, not resume")
	}

	if _, err := svc.RecordAnswer(ctx, first.Session.ID, def.Questions[1].ID, assessment.AnswerInput{SelectedOption: intp(1)}); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	second, err := svc.ResumeOrCreate(ctx, "erin", def.ID)
	if err != nil {
		t.Fatalf("second resumeOrCreate: %v", err)
	}
	if !second.Resumed {
		t.Fatalf("second call must resume")
	}
	if second.Session.ID != first.Session.ID {
		t.Fatalf("resume returned a different session: %s vs %s", second.Session.ID, first.Session.ID)
	}
	if second.LastQuestionIndex != 1 {
		t.Fatalf("last question index = %d, want 1", second.LastQuestionIndex)
	}
	if len(second.Answers) != 1 {
		t.Fatalf("resume lost the recorded answer")
	}

	// A paused session resumes too; a completed one does not.
	if _, err := svc.Transition(ctx, first.Session.ID, assessment.StatePaused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	third, err := svc.ResumeOrCreate(ctx, "erin", def.ID)
	if err != nil {
		t.Fatalf("third resumeOrCreate: %v", err)
	}
	if third.Session.ID != first.Session.ID {
		t.Fatalf("paused session must still resume")
	}

	if _, err := svc.Transition(ctx, first.Session.ID, assessment.StateInProgress); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := svc.Finalize(ctx, first.Session.ID, time.Now()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	fresh, err := svc.ResumeOrCreate(ctx, "erin", def.ID)
	if err != nil {
		t.Fatalf("resumeOrCreate after completion: %v", err)
	}
	if fresh.Session.ID == first.Session.ID {
		t.Fatalf("completed session must not be resumed")
	}
}

func TestRecordAnswerRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	def := seedMCQDefinition(t, svc)

	sess, err := svc.CreateSession(ctx, "frank", def.ID, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := svc.RecordAnswer(ctx, sess.ID, "not-a-ref", assessment.AnswerInput{SelectedOption: intp(0)}); !errors.Is(err, assessment.ErrUnknownQuestion) {
		t.Fatalf("err = %v, want ErrUnknownQuestion", err)
	}

	// Last write wins for the same question.
	ref := def.Questions[0].ID
	if _, err := svc.RecordAnswer(ctx, sess.ID, ref, assessment.AnswerInput{SelectedOption: intp(0)}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, sess.ID, ref, assessment.AnswerInput{SelectedOption: intp(1)}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := svc.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(got.Answers) != 1 {
		t.Fatalf("answer map has %d entries, want 1", len(got.Answers))
	}
	if sel := got.Answers[ref].SelectedOption; sel == nil || *sel != 1 {
		t.Fatalf("last write did not win: %v", sel)
	}

	// Paused sessions refuse answers.
	if _, err := svc.Transition(ctx, sess.ID, assessment.StatePaused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, sess.ID, ref, assessment.AnswerInput{SelectedOption: intp(2)}); !errors.Is(err, assessment.ErrSessionNotActive) {
		t.Fatalf("err = %v, want ErrSessionNotActive", err)
	}
}

func TestTransitionGraph(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	def := seedMCQDefinition(t, svc)

	at := time.Now().Add(time.Hour)
	sess, err := svc.CreateSession(ctx, "gail", def.ID, &at)
	if err != nil {
		t.Fatalf("create scheduled session: %v", err)
	}
	if sess.State != assessment.StateScheduled {
		t.Fatalf("state = %s, want scheduled", sess.State)
	}

	// scheduled cannot pause or complete.
	if _, err := svc.Transition(ctx, sess.ID, assessment.StatePaused); !errors.Is(err, assessment.ErrInvalidTransition) {
		t.Fatalf("scheduled->paused err = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.Transition(ctx, sess.ID, assessment.StateCompleted); !errors.Is(err, assessment.ErrInvalidTransition) {
		t.Fatalf("completed must only be reachable through finalize, got %v", err)
	}

	if _, err := svc.Transition(ctx, sess.ID, assessment.StateInProgress); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Transition(ctx, sess.ID, assessment.StatePaused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := svc.Transition(ctx, sess.ID, assessment.StateInProgress); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := svc.Transition(ctx, sess.ID, assessment.StateCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Terminal states admit nothing.
	if _, err := svc.Transition(ctx, sess.ID, assessment.StateInProgress); !errors.Is(err, assessment.ErrInvalidTransition) {
		t.Fatalf("cancelled->in_progress err = %v, want ErrInvalidTransition", err)
	}
}

func TestMaxScoreSnapshotSurvivesDefinitionEdits(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	def := seedMCQDefinition(t, svc)

	sess, err := svc.CreateSession(ctx, "hank", def.ID, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Author doubles every question's points mid-attempt.
	for i := range def.Questions {
		def.Questions[i].Points *= 2
	}
	if _, err := svc.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("edit definition: %v", err)
	}

	result, err := svc.Finalize(ctx, sess.ID, time.Now())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.MaxScore != 5 {
		t.Fatalf("max = %v, want the 5 snapshotted at creation", result.MaxScore)
	}
}

func TestZeroMaxScorePercentage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	def, err := svc.CreateDefinition(ctx, assessment.Definition{Title: "Empty " + t.Name()})
	if err != nil {
		t.Fatalf("create definition: %v", err)
	}
	sess, err := svc.CreateSession(ctx, "iris", def.ID, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	result, err := svc.Finalize(ctx, sess.ID, time.Now())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.Percentage != 0 {
		t.Fatalf("percentage = %d, want 0 for empty definition", result.Percentage)
	}
}

func TestCreateSessionUnknownDefinition(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.CreateSession(context.Background(), "judy", "missing", nil); !errors.Is(err, assessment.ErrDefinitionNotFound) {
		t.Fatalf("err = %v, want ErrDefinitionNotFound", err)
	}
}

func TestPendingCodingAndManualGrading(t *testing.T) {
	// No runner configured: coding answers grade as pending review.
	svc, _ := newTestService(t)
	ctx := context.Background()

	mcq, err := svc.CreateQuestion(ctx, assessment.Question{
		Kind: assessment.KindMultipleChoice, Prompt: "p",
		Options: []string{"a", "b"}, CorrectOption: 1,
	})
	if err != nil {
		t.Fatalf("create mcq: %v", err)
	}
	coding, err := svc.CreateQuestion(ctx, assessment.Question{
		Kind: assessment.KindCoding, Prompt: "reverse a list",
		TestCases: []assessment.TestCase{{Input: "1 2", Expected: "2 1"}},
	})
	if err != nil {
		t.Fatalf("create coding question: %v", err)
	}
	def, err := svc.CreateDefinition(ctx, assessment.Definition{
		Title:               "Mixed " + t.Name(),
		PassingScorePercent: 60,
		Questions: []assessment.QuestionRef{
			{QuestionID: mcq.ID, Kind: assessment.KindMultipleChoice, Points: 2},
			{QuestionID: coding.ID, Kind: assessment.KindCoding, Points: 3},
		},
	})
	if err != nil {
		t.Fatalf("create definition: %v", err)
	}

	sess, err := svc.CreateSession(ctx, "kate", def.ID, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, sess.ID, def.Questions[0].ID, assessment.AnswerInput{SelectedOption: intp(1)}); err != nil {
		t.Fatalf("record mcq: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, sess.ID, def.Questions[1].ID, assessment.AnswerInput{Text: "def rev(xs): return xs[::-1]"}); err != nil {
		t.Fatalf("record coding: %v", err)
	}

	result, err := svc.Finalize(ctx, sess.ID, time.Now())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !result.HasPendingGrading {
		t.Fatalf("expected pending grading")
	}
	if result.TotalScore != 2 {
		t.Fatalf("total = %v, want 2 (pending contributes 0)", result.TotalScore)
	}
	// Pending points are excluded from the pass/fail denominator: 2/2.
	if result.Percentage != 100 {
		t.Fatalf("percentage = %d, want 100 over the graded denominator", result.Percentage)
	}
	if !result.Passed {
		t.Fatalf("passed = false, want true")
	}

	// Manual grading rewrites the result; awarded points are clamped to
	// the question's max.
	regraded, err := svc.ApplyManualGrades(ctx, sess.ID, map[string]float64{def.Questions[1].ID: 99}, "author-1")
	if err != nil {
		t.Fatalf("apply manual grades: %v", err)
	}
	if regraded.HasPendingGrading {
		t.Fatalf("pending flag not cleared")
	}
	if regraded.TotalScore != 5 {
		t.Fatalf("total = %v, want 5 after manual grade", regraded.TotalScore)
	}
	if regraded.Percentage != 100 {
		t.Fatalf("percentage = %d, want 100", regraded.Percentage)
	}

	// A graded answer cannot be manually graded again.
	if _, err := svc.ApplyManualGrades(ctx, sess.ID, map[string]float64{def.Questions[0].ID: 1}, "author-1"); !errors.Is(err, assessment.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for non-pending answer", err)
	}
}

func TestCreateDefinitionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		def  assessment.Definition
	}{
		{"missing title", assessment.Definition{PassingScorePercent: 50}},
		{"passing score over 100", assessment.Definition{Title: "x1", PassingScorePercent: 101}},
		{"negative points", assessment.Definition{Title: "x2", Questions: []assessment.QuestionRef{
			{QuestionID: "q", Kind: assessment.KindFreeForm, Points: -1},
		}}},
		{"bad kind", assessment.Definition{Title: "x3", Questions: []assessment.QuestionRef{
			{QuestionID: "q", Kind: "riddle", Points: 1},
		}}},
		{"duplicate question", assessment.Definition{Title: "x4", Questions: []assessment.QuestionRef{
			{QuestionID: "q", Kind: assessment.KindFreeForm, Points: 1},
			{QuestionID: "q", Kind: assessment.KindFreeForm, Points: 2},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateDefinition(ctx, tc.def); !errors.Is(err, assessment.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}

	// Title collisions surface as ErrTitleConflict.
	if _, err := svc.CreateDefinition(ctx, assessment.Definition{Title: "Taken"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateDefinition(ctx, assessment.Definition{Title: "Taken"}); !errors.Is(err, assessment.ErrTitleConflict) {
		t.Fatalf("err = %v, want ErrTitleConflict", err)
	}
}

func TestFreeFormGradingIsConfigurable(t *testing.T) {
	svc, _ := newTestService(t, grading.WithFreeFormCredit(0.3))
	ctx := context.Background()

	q, err := svc.CreateQuestion(ctx, assessment.Question{Kind: assessment.KindFreeForm, Prompt: "tell me"})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	def, err := svc.CreateDefinition(ctx, assessment.Definition{
		Title:               "Behavioral " + t.Name(),
		PassingScorePercent: 20,
		Questions: []assessment.QuestionRef{
			{QuestionID: q.ID, Kind: assessment.KindFreeForm, Points: 10},
		},
	})
	if err != nil {
		t.Fatalf("create definition: %v", err)
	}
	sess, err := svc.CreateSession(ctx, "liam", def.ID, nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.RecordAnswer(ctx, sess.ID, def.Questions[0].ID, assessment.AnswerInput{Text: "I once debugged a deadlock."}); err != nil {
		t.Fatalf("record: %v", err)
	}
	result, err := svc.Finalize(ctx, sess.ID, time.Now())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.TotalScore != 3 {
		t.Fatalf("total = %v, want 3 (30%% of 10)", result.TotalScore)
	}
	if result.Percentage != 30 {
		t.Fatalf("percentage = %d, want 30", result.Percentage)
	}
	if !result.Passed {
		t.Fatalf("passed = false, want true at 30%% vs 20%% threshold")
	}
}
