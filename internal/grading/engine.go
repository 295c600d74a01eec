package grading

import (
	"context"
	"fmt"
	"math"
)

// Question kinds the engine knows how to route.
const (
	KindMultipleChoice = "multiple_choice"
	KindCoding         = "coding"
	KindFreeForm       = "free_form"
)

// TestCase is one input/expected pair for a coding question.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Q is the minimal view of a question needed for grading. The caller
// flattens its own question/ref records into this.
type Q struct {
	Kind          string
	Points        float64
	CorrectOption int
	TestCases     []TestCase
	Language      string
}

// Response is the raw answer under grading.
type Response struct {
	SelectedOption *int
	Text           string
}

// Outcome is the result of grading a single response.
type Outcome struct {
	Points   float64  // points awarded
	Max      float64  // the question's max points
	Correct  bool     // full-credit match (MCQ) or all test cases passed
	Pending  bool     // awaiting runner report or manual review
	Feedback []string // optional notes
}

// Gradable grades a single question response.
type Gradable interface {
	Grade(ctx context.Context, q Q, resp Response) (Outcome, error)
}

// Engine routes by question kind to the matching Gradable. It holds no
// mutable state: grading is a pure function of (question, response) and
// is safe to re-run until its output is committed.
type Engine struct {
	strategies map[string]Gradable
}

type Option func(*config)

type config struct {
	FreeFormCredit float64
	Runner         CodeRunner
}

// WithFreeFormCredit sets the partial-credit fraction (0..1) awarded to
// non-empty free-form answers. There is no principled default for this
// heuristic, so deployments set it explicitly; 0.5 is used when unset.
func WithFreeFormCredit(frac float64) Option {
	return func(c *config) {
		if frac >= 0 && frac <= 1 {
			c.FreeFormCredit = frac
		}
	}
}

// WithRunner installs the external code runner used for coding
// questions. Without one, coding answers grade as pending review.
func WithRunner(r CodeRunner) Option { return func(c *config) { c.Runner = r } }

// NewEngine installs the built-in strategies.
func NewEngine(opts ...Option) *Engine {
	cfg := &config{FreeFormCredit: 0.5}
	for _, o := range opts {
		o(cfg)
	}
	return &Engine{
		strategies: map[string]Gradable{
			KindMultipleChoice: multipleChoiceStrategy{},
			KindCoding:         codingStrategy{runner: cfg.Runner},
			KindFreeForm:       freeFormStrategy{credit: cfg.FreeFormCredit},
		},
	}
}

func (e *Engine) Grade(ctx context.Context, q Q, resp Response) (Outcome, error) {
	s, ok := e.strategies[q.Kind]
	if !ok {
		return Outcome{Max: q.Points, Pending: true, Feedback: []string{"no strategy for kind " + q.Kind}}, nil
	}
	return s.Grade(ctx, q, resp)
}

// --- Strategies ---

type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(_ context.Context, q Q, resp Response) (Outcome, error) {
	out := Outcome{Max: q.Points}
	if resp.SelectedOption == nil {
		return out, nil
	}
	if *resp.SelectedOption == q.CorrectOption {
		out.Points = q.Points
		out.Correct = true
	}
	return out, nil
}

type codingStrategy struct {
	runner CodeRunner
}

func (s codingStrategy) Grade(ctx context.Context, q Q, resp Response) (Outcome, error) {
	out := Outcome{Max: q.Points}
	if normalize(resp.Text) == "" {
		return out, nil
	}
	if s.runner == nil {
		out.Pending = true
		out.Feedback = append(out.Feedback, "no code runner configured")
		return out, nil
	}
	report, err := s.runner.Run(ctx, Submission{
		Language:  q.Language,
		Source:    resp.Text,
		TestCases: q.TestCases,
	})
	if err != nil {
		// Runner unreachable or timed out: never block finalize on it.
		out.Pending = true
		out.Feedback = append(out.Feedback, "runner unavailable: "+err.Error())
		return out, nil
	}
	if report.Total <= 0 {
		out.Pending = true
		out.Feedback = append(out.Feedback, "runner returned no test cases")
		return out, nil
	}
	out.Points = math.Round(q.Points * float64(report.Passed) / float64(report.Total))
	out.Correct = report.Passed == report.Total
	out.Feedback = append(out.Feedback, fmt.Sprintf("test cases: %d/%d", report.Passed, report.Total))
	return out, nil
}

type freeFormStrategy struct {
	credit float64
}

func (s freeFormStrategy) Grade(_ context.Context, q Q, resp Response) (Outcome, error) {
	out := Outcome{Max: q.Points}
	if normalize(resp.Text) == "" {
		return out, nil
	}
	out.Points = q.Points * s.credit
	out.Feedback = append(out.Feedback, "partial credit for attempt; eligible for manual review")
	return out, nil
}
