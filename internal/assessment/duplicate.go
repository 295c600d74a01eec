package assessment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// copyTitleRe matches "<root> (Copy <n>)".
var copyTitleRe = regexp.MustCompile(`^(.*) \(Copy (\d+)\)$`)

// maxDuplicateRetries bounds the insert-retry loop when two clones race
// for the same title.
const maxDuplicateRetries = 5

// NextUniqueTitle names a clone of baseTitle so it collides with none
// of existingTitles. Duplicating a copy names relative to the original
// root, so "Quiz (Copy 2)" clones to "Quiz (Copy 3)", never to
// "Quiz (Copy 2) (Copy 1)".
func NextUniqueTitle(baseTitle string, existingTitles []string) string {
	root := baseTitle
	if m := copyTitleRe.FindStringSubmatch(baseTitle); m != nil {
		root = m[1]
	}
	maxN := 0
	for _, t := range existingTitles {
		m := copyTitleRe.FindStringSubmatch(t)
		if m == nil || m[1] != root {
			continue
		}
		if n, err := strconv.Atoi(m[2]); err == nil && n > maxN {
			maxN = n
		}
	}
	return fmt.Sprintf("%s (Copy %d)", root, maxN+1)
}

// DuplicateDefinition clones a definition under a fresh unique title.
// The clone gets new ids, a recomputed question count, and is always
// inactive and private so it cannot be taken as a live attempt before
// an author reviews it. The title scan and the insert are not atomic:
// the store's uniqueness constraint is the authority, and a conflict
// retries with the next number up to a small bound.
func (s *Service) DuplicateDefinition(ctx context.Context, definitionID string) (Definition, error) {
	src, err := s.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return Definition{}, err
	}

	clone := src
	clone.Questions = make([]QuestionRef, len(src.Questions))
	copy(clone.Questions, src.Questions)
	for i := range clone.Questions {
		clone.Questions[i].ID = uuid.NewString()
	}
	clone.QuestionCount = len(clone.Questions)
	clone.Active = false
	clone.Public = false

	title := ""
	for attempt := 0; attempt < maxDuplicateRetries; attempt++ {
		titles, err := s.store.ListDefinitionTitles(ctx)
		if err != nil {
			return Definition{}, err
		}
		title = NextUniqueTitle(src.Title, titles)

		clone.ID = uuid.NewString()
		clone.Title = title
		clone.CreatedAt = time.Now().Unix()
		err = s.store.PutDefinition(ctx, clone)
		if err == nil {
			s.log.Info("definition duplicated",
				zap.String("source_id", definitionID),
				zap.String("clone_id", clone.ID),
				zap.String("title", title))
			s.appendEvent(ctx, "definition_duplicated", clone.ID, map[string]string{
				"source_id": definitionID,
				"title":     title,
			})
			return clone, nil
		}
		if !errors.Is(err, ErrTitleConflict) {
			return Definition{}, err
		}
		// Lost the race; rescan and try the next number.
		s.log.Debug("duplicate title conflict, retrying",
			zap.String("title", title), zap.Int("attempt", attempt+1))
	}
	return Definition{}, fmt.Errorf("%w: %s", ErrTitleConflict, title)
}
