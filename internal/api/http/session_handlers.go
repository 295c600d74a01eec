package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mockmate/mockmate-engine/internal/assessment"
	auth "github.com/mockmate/mockmate-engine/internal/auth/middleware"
	"github.com/mockmate/mockmate-engine/internal/rbac"
)

func CreateSessionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DefinitionID string `json:"definition_id"`
			ScheduledAt  *int64 `json:"scheduled_at,omitempty"` // unix seconds
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.DefinitionID == "" {
			http.Error(w, "definition_id required", http.StatusBadRequest)
			return
		}
		var scheduledAt *time.Time
		if req.ScheduledAt != nil {
			t := time.Unix(*req.ScheduledAt, 0)
			scheduledAt = &t
		}
		sess, err := svc.CreateSession(r.Context(), auth.SubjectFromContext(r.Context()), req.DefinitionID, scheduledAt)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	}
}

func ResumeSessionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DefinitionID string `json:"definition_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.DefinitionID == "" {
			http.Error(w, "definition_id required", http.StatusBadRequest)
			return
		}
		info, err := svc.ResumeOrCreate(r.Context(), auth.SubjectFromContext(r.Context()), req.DefinitionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// loadOwnSession fetches the session and enforces that the caller owns
// it or holds viewAllPerm. Returns zero Session after writing the
// response on failure.
func loadOwnSession(w http.ResponseWriter, r *http.Request, svc *assessment.Service, viewAllPerm string) (assessment.Session, bool) {
	sess, err := svc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return assessment.Session{}, false
	}
	sub := auth.SubjectFromContext(r.Context())
	if sess.UserID != sub && !rbac.Allowed(rbac.RoleFromContext(r.Context()), viewAllPerm) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return assessment.Session{}, false
	}
	return sess, true
}

func GetSessionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := loadOwnSession(w, r, svc, "session:view-all")
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func ListSessionsHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		opts := assessment.SessionListOpts{
			DefinitionID: q.Get("definition_id"),
			UserID:       q.Get("user_id"),
			State:        q.Get("state"),
			Limit:        limit,
			Offset:       offset,
		}
		// Without the view-all permission, callers only see their own.
		if !rbac.Allowed(rbac.RoleFromContext(r.Context()), "session:view-all") {
			opts.UserID = auth.SubjectFromContext(r.Context())
		}
		out, err := svc.ListSessions(r.Context(), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func RecordAnswerHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := loadOwnSession(w, r, svc, "session:view-all")
		if !ok {
			return
		}
		var req struct {
			QuestionRefID  string `json:"question_ref_id"`
			SelectedOption *int   `json:"selected_option,omitempty"`
			Text           string `json:"text,omitempty"`
			TimeSpentSec   int    `json:"time_spent_sec"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.QuestionRefID == "" {
			http.Error(w, "question_ref_id required", http.StatusBadRequest)
			return
		}
		ans, err := svc.RecordAnswer(r.Context(), sess.ID, req.QuestionRefID, assessment.AnswerInput{
			SelectedOption: req.SelectedOption,
			Text:           req.Text,
			TimeSpentSec:   req.TimeSpentSec,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ans)
	}
}

func TransitionSessionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := loadOwnSession(w, r, svc, "session:view-all")
		if !ok {
			return
		}
		var req struct {
			State string `json:"state"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		updated, err := svc.Transition(r.Context(), sess.ID, assessment.SessionState(req.State))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func FinalizeSessionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := loadOwnSession(w, r, svc, "session:view-all")
		if !ok {
			return
		}
		var req struct {
			EndedAt *int64 `json:"ended_at,omitempty"` // unix seconds, defaults to now
		}
		// Body is optional for finalize.
		_ = json.NewDecoder(r.Body).Decode(&req)
		endedAt := time.Now()
		if req.EndedAt != nil {
			endedAt = time.Unix(*req.EndedAt, 0)
		}
		result, err := svc.Finalize(r.Context(), sess.ID, endedAt)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func GetResultHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := loadOwnSession(w, r, svc, "result:view-all")
		if !ok {
			return
		}
		result, err := svc.GetResult(r.Context(), sess.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func ApplyManualGradesHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var grades map[string]float64
		if err := json.NewDecoder(r.Body).Decode(&grades); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		result, err := svc.ApplyManualGrades(r.Context(),
			chi.URLParam(r, "sessionID"), grades, auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
