package grading_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mockmate/mockmate-engine/internal/grading"
)

type fakeRunner struct {
	report grading.RunReport
	err    error
	calls  int
}

func (f *fakeRunner) Run(_ context.Context, _ grading.Submission) (grading.RunReport, error) {
	f.calls++
	return f.report, f.err
}

func intp(n int) *int { return &n }

func TestMultipleChoiceGrading(t *testing.T) {
	e := grading.NewEngine()
	q := grading.Q{Kind: grading.KindMultipleChoice, Points: 2, CorrectOption: 1}

	cases := []struct {
		name    string
		resp    grading.Response
		points  float64
		correct bool
	}{
		{"correct option", grading.Response{SelectedOption: intp(1)}, 2, true},
		{"wrong option", grading.Response{SelectedOption: intp(0)}, 0, false},
		{"no selection", grading.Response{}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := e.Grade(context.Background(), q, tc.resp)
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			if out.Points != tc.points || out.Correct != tc.correct {
				t.Fatalf("got points=%v correct=%v, want points=%v correct=%v",
					out.Points, out.Correct, tc.points, tc.correct)
			}
			if out.Pending {
				t.Fatalf("mcq grading must never be pending")
			}
		})
	}
}

func TestCodingGradingPartialCredit(t *testing.T) {
	runner := &fakeRunner{report: grading.RunReport{Passed: 2, Total: 3}}
	e := grading.NewEngine(grading.WithRunner(runner))
	q := grading.Q{Kind: grading.KindCoding, Points: 10, TestCases: []grading.TestCase{{}, {}, {}}}

	out, err := e.Grade(context.Background(), q, grading.Response{Text: "print(1)"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	// 10 * 2/3 = 6.67, rounded to the nearest whole point.
	if out.Points != 7 {
		t.Fatalf("points = %v, want 7", out.Points)
	}
	if out.Correct {
		t.Fatalf("partial pass must not be marked correct")
	}
	if runner.calls != 1 {
		t.Fatalf("runner called %d times, want 1", runner.calls)
	}
}

func TestCodingGradingAllPassed(t *testing.T) {
	runner := &fakeRunner{report: grading.RunReport{Passed: 4, Total: 4}}
	e := grading.NewEngine(grading.WithRunner(runner))
	q := grading.Q{Kind: grading.KindCoding, Points: 8}

	out, err := e.Grade(context.Background(), q, grading.Response{Text: "ok"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if out.Points != 8 || !out.Correct {
		t.Fatalf("got points=%v correct=%v, want 8/true", out.Points, out.Correct)
	}
}

func TestCodingGradingPendingWithoutRunner(t *testing.T) {
	e := grading.NewEngine()
	q := grading.Q{Kind: grading.KindCoding, Points: 5}

	out, err := e.Grade(context.Background(), q, grading.Response{Text: "code"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !out.Pending || out.Points != 0 {
		t.Fatalf("got pending=%v points=%v, want pending with 0 points", out.Pending, out.Points)
	}
}

func TestCodingGradingPendingOnRunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("deadline exceeded")}
	e := grading.NewEngine(grading.WithRunner(runner))
	q := grading.Q{Kind: grading.KindCoding, Points: 5}

	out, err := e.Grade(context.Background(), q, grading.Response{Text: "code"})
	if err != nil {
		t.Fatalf("runner failure must not fail grading: %v", err)
	}
	if !out.Pending || out.Points != 0 {
		t.Fatalf("got pending=%v points=%v, want pending with 0 points", out.Pending, out.Points)
	}
}

func TestCodingGradingEmptySubmission(t *testing.T) {
	runner := &fakeRunner{report: grading.RunReport{Passed: 1, Total: 1}}
	e := grading.NewEngine(grading.WithRunner(runner))
	q := grading.Q{Kind: grading.KindCoding, Points: 5}

	out, err := e.Grade(context.Background(), q, grading.Response{Text: "   "})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if out.Points != 0 || out.Pending {
		t.Fatalf("empty submission must score 0 without going pending")
	}
	if runner.calls != 0 {
		t.Fatalf("runner must not run for empty submissions")
	}
}

func TestFreeFormGradingUsesConfiguredCredit(t *testing.T) {
	e := grading.NewEngine(grading.WithFreeFormCredit(0.25))
	q := grading.Q{Kind: grading.KindFreeForm, Points: 4}

	out, err := e.Grade(context.Background(), q, grading.Response{Text: "I would use a mutex."})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if out.Points != 1 {
		t.Fatalf("points = %v, want 1 (25%% of 4)", out.Points)
	}

	out, err = e.Grade(context.Background(), q, grading.Response{Text: "  ...  "})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if out.Points != 0 {
		t.Fatalf("punctuation-only answer must score 0, got %v", out.Points)
	}
}

func TestUnknownKindGoesPending(t *testing.T) {
	e := grading.NewEngine()
	out, err := e.Grade(context.Background(), grading.Q{Kind: "jigsaw", Points: 3}, grading.Response{Text: "x"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !out.Pending || out.Points != 0 {
		t.Fatalf("unknown kind must grade as pending with 0 points")
	}
}
