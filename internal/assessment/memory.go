package assessment

import (
	"context"
	"sort"
	"sync"
)

// memoryStore is the offline/dev and test implementation of Store.
type memoryStore struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	questions   map[string]Question
	sessions    map[string]Session
	results     map[string]Result
}

func NewInMemoryStore() Store {
	return &memoryStore{
		definitions: map[string]Definition{},
		questions:   map[string]Question{},
		sessions:    map[string]Session{},
		results:     map[string]Result{},
	}
}

func (m *memoryStore) PutDefinition(_ context.Context, d Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.definitions {
		if existing.Title == d.Title && existing.ID != d.ID {
			return ErrTitleConflict
		}
	}
	m.definitions[d.ID] = cloneDefinition(d)
	return nil
}

func (m *memoryStore) GetDefinition(_ context.Context, id string) (Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.definitions[id]
	if !ok {
		return Definition{}, ErrDefinitionNotFound
	}
	return cloneDefinition(d), nil
}

func (m *memoryStore) ListDefinitions(_ context.Context, limit, offset int) ([]DefinitionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DefinitionSummary, 0, len(m.definitions))
	for _, d := range m.definitions {
		out = append(out, DefinitionSummary{
			ID: d.ID, Title: d.Title, QuestionCount: d.QuestionCount,
			Active: d.Active, Public: d.Public, CreatedAt: d.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return paginate(out, limit, offset), nil
}

func (m *memoryStore) ListDefinitionTitles(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	titles := make([]string, 0, len(m.definitions))
	for _, d := range m.definitions {
		titles = append(titles, d.Title)
	}
	sort.Strings(titles)
	return titles, nil
}

func (m *memoryStore) PutQuestion(_ context.Context, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrQuestionNotFound
	}
	return q, nil
}

func (m *memoryStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[s.DefinitionID]; !ok {
		return ErrDefinitionNotFound
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *memoryStore) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (m *memoryStore) FindActiveSession(_ context.Context, userID, definitionID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.DefinitionID == definitionID &&
			(s.State == StateInProgress || s.State == StatePaused) {
			return cloneSession(s), nil
		}
	}
	return Session{}, ErrSessionNotFound
}

func (m *memoryStore) UpdateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *memoryStore) ListSessions(_ context.Context, opts SessionListOpts) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0)
	for _, s := range m.sessions {
		if opts.UserID != "" && s.UserID != opts.UserID {
			continue
		}
		if opts.DefinitionID != "" && s.DefinitionID != opts.DefinitionID {
			continue
		}
		if opts.State != "" && string(s.State) != opts.State {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return paginate(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) FinalizeSession(_ context.Context, s Session, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[s.ID] = cloneSession(s)
	m.results[r.SessionID] = cloneResult(r)
	return nil
}

func (m *memoryStore) UpdateResult(_ context.Context, s Session, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[r.SessionID]; !ok {
		return ErrResultNotFound
	}
	m.sessions[s.ID] = cloneSession(s)
	m.results[r.SessionID] = cloneResult(r)
	return nil
}

func (m *memoryStore) GetResult(_ context.Context, sessionID string) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[sessionID]
	if !ok {
		return Result{}, ErrResultNotFound
	}
	return cloneResult(r), nil
}

// Deep copies keep callers from mutating shared map state.

func cloneDefinition(d Definition) Definition {
	out := d
	out.Questions = append([]QuestionRef(nil), d.Questions...)
	return out
}

func cloneSession(s Session) Session {
	out := s
	out.Answers = make(map[string]Answer, len(s.Answers))
	for k, v := range s.Answers {
		if v.SelectedOption != nil {
			sel := *v.SelectedOption
			v.SelectedOption = &sel
		}
		out.Answers[k] = v
	}
	return out
}

func cloneResult(r Result) Result {
	out := r
	out.Categories = make(map[string]CategoryScore, len(r.Categories))
	for k, v := range r.Categories {
		out.Categories[k] = v
	}
	return out
}

func paginate[T any](in []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
