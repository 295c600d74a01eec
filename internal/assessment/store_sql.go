package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLStore implements Store over database/sql. Nested structures
// (question refs, options, test cases, answer maps, category
// breakdowns) are typed in memory and JSON-encoded only here, at the
// storage boundary.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) PutDefinition(ctx context.Context, d Definition) error {
	qj, err := json.Marshal(d.Questions)
	if err != nil {
		return err
	}
	createdAt := d.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO definitions
		(id,title,description,category,questions_json,question_count,passing_score,duration_sec,active,public,author_id,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title, description=EXCLUDED.description, category=EXCLUDED.category,
			questions_json=EXCLUDED.questions_json, question_count=EXCLUDED.question_count,
			passing_score=EXCLUDED.passing_score, duration_sec=EXCLUDED.duration_sec,
			active=EXCLUDED.active, public=EXCLUDED.public`,
		d.ID, d.Title, d.Description, d.Category, string(qj), d.QuestionCount,
		d.PassingScorePercent, d.DurationSec, boolInt(d.Active), boolInt(d.Public),
		d.AuthorID, createdAt)
	if isUniqueViolation(err) {
		return ErrTitleConflict
	}
	return err
}

func (s *SQLStore) GetDefinition(ctx context.Context, id string) (Definition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,description,category,questions_json,question_count,passing_score,duration_sec,active,public,author_id,created_at
		FROM definitions WHERE id=$1`, id)
	var d Definition
	var qjson string
	var active, public int
	if err := row.Scan(&d.ID, &d.Title, &d.Description, &d.Category, &qjson, &d.QuestionCount,
		&d.PassingScorePercent, &d.DurationSec, &active, &public, &d.AuthorID, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Definition{}, ErrDefinitionNotFound
		}
		return Definition{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &d.Questions); err != nil {
		return Definition{}, fmt.Errorf("decode questions for definition %s: %w", id, err)
	}
	d.Active = active != 0
	d.Public = public != 0
	return d, nil
}

func (s *SQLStore) ListDefinitions(ctx context.Context, limit, offset int) ([]DefinitionSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,title,question_count,active,public,created_at
		FROM definitions ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DefinitionSummary{}
	for rows.Next() {
		var d DefinitionSummary
		var active, public int
		if err := rows.Scan(&d.ID, &d.Title, &d.QuestionCount, &active, &public, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Active = active != 0
		d.Public = public != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListDefinitionTitles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM definitions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	titles := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	oj, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	tj, err := json.Marshal(q.TestCases)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions
		(id,kind,prompt,options_json,correct_option,test_cases_json,language,category)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			kind=EXCLUDED.kind, prompt=EXCLUDED.prompt, options_json=EXCLUDED.options_json,
			correct_option=EXCLUDED.correct_option, test_cases_json=EXCLUDED.test_cases_json,
			language=EXCLUDED.language, category=EXCLUDED.category`,
		q.ID, string(q.Kind), q.Prompt, string(oj), q.CorrectOption, string(tj), q.Language, q.Category)
	return err
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,kind,prompt,options_json,correct_option,test_cases_json,language,category
		FROM questions WHERE id=$1`, id)
	var q Question
	var kind, ojson, tjson string
	if err := row.Scan(&q.ID, &kind, &q.Prompt, &ojson, &q.CorrectOption, &tjson, &q.Language, &q.Category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, ErrQuestionNotFound
		}
		return Question{}, err
	}
	q.Kind = QuestionKind(kind)
	if err := json.Unmarshal([]byte(ojson), &q.Options); err != nil {
		return Question{}, fmt.Errorf("decode options for question %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(tjson), &q.TestCases); err != nil {
		return Question{}, fmt.Errorf("decode test cases for question %s: %w", id, err)
	}
	return q, nil
}

func (s *SQLStore) CreateSession(ctx context.Context, sess Session) error {
	var exist int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM definitions WHERE id=$1`, sess.DefinitionID).Scan(&exist); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDefinitionNotFound
		}
		return err
	}
	aj, err := json.Marshal(sess.Answers)
	if err != nil {
		return err
	}
	createdAt := sess.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions
		(id,definition_id,user_id,state,scheduled_at,started_at,resumed_at,ended_at,elapsed_sec,max_score,last_question_index,answers_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		sess.ID, sess.DefinitionID, sess.UserID, string(sess.State), sess.ScheduledAt,
		sess.StartedAt, sess.ResumedAt, sess.EndedAt, sess.ElapsedSec, sess.MaxScore,
		sess.LastQuestionIndex, string(aj), createdAt)
	return err
}

const sessionCols = `id,definition_id,user_id,state,scheduled_at,started_at,resumed_at,ended_at,elapsed_sec,max_score,last_question_index,answers_json,created_at`

func (s *SQLStore) scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var sess Session
	var state, ajson string
	if err := row.Scan(&sess.ID, &sess.DefinitionID, &sess.UserID, &state, &sess.ScheduledAt,
		&sess.StartedAt, &sess.ResumedAt, &sess.EndedAt, &sess.ElapsedSec, &sess.MaxScore,
		&sess.LastQuestionIndex, &ajson, &sess.CreatedAt); err != nil {
		return Session{}, err
	}
	sess.State = SessionState(state)
	if err := json.Unmarshal([]byte(ajson), &sess.Answers); err != nil || sess.Answers == nil {
		sess.Answers = map[string]Answer{}
	}
	return sess, nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id=$1`, id)
	sess, err := s.scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return sess, err
}

func (s *SQLStore) FindActiveSession(ctx context.Context, userID, definitionID string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions
		WHERE user_id=$1 AND definition_id=$2 AND state IN ('in_progress','paused')
		ORDER BY started_at DESC LIMIT 1`, userID, definitionID)
	sess, err := s.scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return sess, err
}

func (s *SQLStore) UpdateSession(ctx context.Context, sess Session) error {
	aj, err := json.Marshal(sess.Answers)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET
		state=$1, scheduled_at=$2, started_at=$3, resumed_at=$4, ended_at=$5,
		elapsed_sec=$6, last_question_index=$7, answers_json=$8
		WHERE id=$9`,
		string(sess.State), sess.ScheduledAt, sess.StartedAt, sess.ResumedAt, sess.EndedAt,
		sess.ElapsedSec, sess.LastQuestionIndex, string(aj), sess.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLStore) ListSessions(ctx context.Context, opts SessionListOpts) ([]Session, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	where := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.UserID != "" {
		where = append(where, "user_id="+arg(opts.UserID))
	}
	if opts.DefinitionID != "" {
		where = append(where, "definition_id="+arg(opts.DefinitionID))
	}
	if opts.State != "" {
		where = append(where, "state="+arg(opts.State))
	}
	q := `SELECT ` + sessionCols + ` FROM sessions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Session{}
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLStore) FinalizeSession(ctx context.Context, sess Session, r Result) error {
	aj, err := json.Marshal(sess.Answers)
	if err != nil {
		return err
	}
	cj, err := json.Marshal(r.Categories)
	if err != nil {
		return err
	}
	createdAt := r.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET
		state=$1, ended_at=$2, elapsed_sec=$3, answers_json=$4 WHERE id=$5`,
		string(sess.State), sess.EndedAt, sess.ElapsedSec, string(aj), sess.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO results
		(session_id,definition_id,user_id,total_score,max_score,percentage,passed,time_spent_sec,time_clamped,has_pending,categories_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.SessionID, r.DefinitionID, r.UserID, r.TotalScore, r.MaxScore, r.Percentage,
		boolInt(r.Passed), r.TimeSpentSec, boolInt(r.TimeClamped), boolInt(r.HasPendingGrading),
		string(cj), createdAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) UpdateResult(ctx context.Context, sess Session, r Result) error {
	aj, err := json.Marshal(sess.Answers)
	if err != nil {
		return err
	}
	cj, err := json.Marshal(r.Categories)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET answers_json=$1 WHERE id=$2`,
		string(aj), sess.ID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE results SET
		total_score=$1, percentage=$2, passed=$3, has_pending=$4, categories_json=$5
		WHERE session_id=$6`,
		r.TotalScore, r.Percentage, boolInt(r.Passed), boolInt(r.HasPendingGrading),
		string(cj), r.SessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrResultNotFound
	}
	return tx.Commit()
}

func (s *SQLStore) GetResult(ctx context.Context, sessionID string) (Result, error) {
	row := s.db.QueryRowContext(ctx, `SELECT session_id,definition_id,user_id,total_score,max_score,percentage,passed,time_spent_sec,time_clamped,has_pending,categories_json,created_at
		FROM results WHERE session_id=$1`, sessionID)
	var r Result
	var passed, clamped, pending int
	var cjson string
	if err := row.Scan(&r.SessionID, &r.DefinitionID, &r.UserID, &r.TotalScore, &r.MaxScore,
		&r.Percentage, &passed, &r.TimeSpentSec, &clamped, &pending, &cjson, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrResultNotFound
		}
		return Result{}, err
	}
	r.Passed = passed != 0
	r.TimeClamped = clamped != 0
	r.HasPendingGrading = pending != 0
	if err := json.Unmarshal([]byte(cjson), &r.Categories); err != nil || r.Categories == nil {
		r.Categories = map[string]CategoryScore{}
	}
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation recognizes unique-constraint errors from both
// supported drivers; the title scan and the insert are not atomic, so
// the constraint is the authority.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") // sqlite
}
