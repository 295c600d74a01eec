package assessment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mockmate/mockmate-engine/internal/assessment"
	"github.com/mockmate/mockmate-engine/internal/grading"
)

func TestNextUniqueTitle(t *testing.T) {
	cases := []struct {
		name     string
		base     string
		existing []string
		want     string
	}{
		{"no copies yet", "Quiz", nil, "Quiz (Copy 1)"},
		{"next number", "Quiz", []string{"Quiz (Copy 1)", "Quiz (Copy 2)"}, "Quiz (Copy 3)"},
		{"duplicating a copy uses the root", "Quiz (Copy 2)", []string{"Quiz (Copy 1)", "Quiz (Copy 2)"}, "Quiz (Copy 3)"},
		{"gap in numbering still takes max+1", "Quiz", []string{"Quiz (Copy 5)"}, "Quiz (Copy 6)"},
		{"other roots ignored", "Quiz", []string{"Exam (Copy 9)", "Quiz (Copy 1)"}, "Quiz (Copy 2)"},
		{"title containing parens but not the pattern", "Go (advanced)", nil, "Go (advanced) (Copy 1)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := assessment.NextUniqueTitle(tc.base, tc.existing)
			if got != tc.want {
				t.Fatalf("NextUniqueTitle(%q, %v) = %q, want %q", tc.base, tc.existing, got, tc.want)
			}
		})
	}
}

// conflictStore makes the first n PutDefinition calls for a new id fail
// with ErrTitleConflict, simulating a concurrent clone winning the race
// between the title scan and the insert.
type conflictStore struct {
	assessment.Store
	conflicts int
	puts      int
}

func (c *conflictStore) PutDefinition(ctx context.Context, d assessment.Definition) error {
	c.puts++
	if c.conflicts > 0 {
		c.conflicts--
		return assessment.ErrTitleConflict
	}
	return c.Store.PutDefinition(ctx, d)
}

func TestDuplicateDefinition(t *testing.T) {
	store := assessment.NewInMemoryStore()
	svc := assessment.NewService(store, grading.NewEngine())

	src, err := svc.CreateDefinition(context.Background(), assessment.Definition{
		Title:               "Backend Screen",
		PassingScorePercent: 70,
		Active:              true,
		Public:              true,
		Questions: []assessment.QuestionRef{
			{QuestionID: "q1", Kind: assessment.KindMultipleChoice, Points: 2},
			{QuestionID: "q2", Kind: assessment.KindCoding, Points: 5},
		},
	})
	if err != nil {
		t.Fatalf("create definition: %v", err)
	}

	clone, err := svc.DuplicateDefinition(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if clone.Title != "Backend Screen (Copy 1)" {
		t.Fatalf("clone title = %q", clone.Title)
	}
	if clone.ID == src.ID {
		t.Fatalf("clone must get a fresh id")
	}
	if clone.Active || clone.Public {
		t.Fatalf("clone must be inactive and private")
	}
	if clone.QuestionCount != 2 {
		t.Fatalf("clone question count = %d, want 2", clone.QuestionCount)
	}
	for i, q := range clone.Questions {
		if q.ID == src.Questions[i].ID {
			t.Fatalf("question ref %d kept the source id", i)
		}
		if q.QuestionID != src.Questions[i].QuestionID {
			t.Fatalf("question ref %d lost its catalog question", i)
		}
	}

	// Duplicating the clone names relative to the root.
	second, err := svc.DuplicateDefinition(context.Background(), clone.ID)
	if err != nil {
		t.Fatalf("duplicate clone: %v", err)
	}
	if second.Title != "Backend Screen (Copy 2)" {
		t.Fatalf("second clone title = %q", second.Title)
	}
}

func TestDuplicateDefinitionNotFound(t *testing.T) {
	svc := assessment.NewService(assessment.NewInMemoryStore(), grading.NewEngine())
	_, err := svc.DuplicateDefinition(context.Background(), "missing")
	if !errors.Is(err, assessment.ErrDefinitionNotFound) {
		t.Fatalf("err = %v, want ErrDefinitionNotFound", err)
	}
}

func TestDuplicateDefinitionRetriesOnConflict(t *testing.T) {
	inner := assessment.NewInMemoryStore()
	store := &conflictStore{Store: inner, conflicts: 0}
	svc := assessment.NewService(store, grading.NewEngine())

	src, err := svc.CreateDefinition(context.Background(), assessment.Definition{Title: "Racy"})
	if err != nil {
		t.Fatalf("create definition: %v", err)
	}

	store.conflicts = 2
	store.puts = 0
	clone, err := svc.DuplicateDefinition(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("duplicate after conflicts: %v", err)
	}
	if store.puts != 3 {
		t.Fatalf("puts = %d, want 3 (two conflicts then success)", store.puts)
	}
	if clone.Title == "" {
		t.Fatalf("clone has no title")
	}
}

func TestDuplicateDefinitionGivesUpAfterBound(t *testing.T) {
	inner := assessment.NewInMemoryStore()
	store := &conflictStore{Store: inner}
	svc := assessment.NewService(store, grading.NewEngine())

	src, err := svc.CreateDefinition(context.Background(), assessment.Definition{Title: "Hot"})
	if err != nil {
		t.Fatalf("create definition: %v", err)
	}
	store.conflicts = 1 << 30 // never succeeds
	store.puts = 0
	_, err = svc.DuplicateDefinition(context.Background(), src.ID)
	if !errors.Is(err, assessment.ErrTitleConflict) {
		t.Fatalf("err = %v, want ErrTitleConflict", err)
	}
	if store.puts > 10 {
		t.Fatalf("retry loop not bounded: %d puts", store.puts)
	}
}
