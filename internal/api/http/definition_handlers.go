package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mockmate/mockmate-engine/internal/assessment"
	auth "github.com/mockmate/mockmate-engine/internal/auth/middleware"
	"github.com/mockmate/mockmate-engine/internal/rbac"
)

var validate = validator.New()

type questionRefPayload struct {
	QuestionID   string  `json:"question_id" validate:"required"`
	Kind         string  `json:"kind" validate:"required,oneof=multiple_choice coding free_form"`
	Points       float64 `json:"points" validate:"gte=0"`
	TimeLimitSec int     `json:"time_limit_sec" validate:"gte=0"`
	Category     string  `json:"category"`
}

type definitionPayload struct {
	Title               string               `json:"title" validate:"required"`
	Description         string               `json:"description"`
	Category            string               `json:"category"`
	PassingScorePercent int                  `json:"passing_score_percent" validate:"gte=0,lte=100"`
	DurationSec         int                  `json:"duration_sec" validate:"gte=0"`
	Active              bool                 `json:"active"`
	Public              bool                 `json:"public"`
	Questions           []questionRefPayload `json:"questions" validate:"dive"`
}

func CreateDefinitionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req definitionPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		def := assessment.Definition{
			Title:               req.Title,
			Description:         req.Description,
			Category:            req.Category,
			PassingScorePercent: req.PassingScorePercent,
			DurationSec:         req.DurationSec,
			Active:              req.Active,
			Public:              req.Public,
			AuthorID:            auth.SubjectFromContext(r.Context()),
		}
		for _, q := range req.Questions {
			def.Questions = append(def.Questions, assessment.QuestionRef{
				QuestionID:   q.QuestionID,
				Kind:         assessment.QuestionKind(q.Kind),
				Points:       q.Points,
				TimeLimitSec: q.TimeLimitSec,
				Category:     q.Category,
			})
		}
		created, err := svc.CreateDefinition(r.Context(), def)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func GetDefinitionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := svc.GetDefinition(r.Context(), chi.URLParam(r, "definitionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, def)
	}
}

func ListDefinitionsHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		out, err := svc.ListDefinitions(r.Context(), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func DuplicateDefinitionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clone, err := svc.DuplicateDefinition(r.Context(), chi.URLParam(r, "definitionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, clone)
	}
}

type questionPayload struct {
	Kind          string                `json:"kind" validate:"required,oneof=multiple_choice coding free_form"`
	Prompt        string                `json:"prompt" validate:"required"`
	Options       []string              `json:"options"`
	CorrectOption int                   `json:"correct_option" validate:"gte=0"`
	TestCases     []assessment.TestCase `json:"test_cases"`
	Language      string                `json:"language"`
	Category      string                `json:"category"`
}

func CreateQuestionHandler(svc *assessment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req questionPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		q, err := svc.CreateQuestion(r.Context(), assessment.Question{
			Kind:          assessment.QuestionKind(req.Kind),
			Prompt:        req.Prompt,
			Options:       req.Options,
			CorrectOption: req.CorrectOption,
			TestCases:     req.TestCases,
			Language:      req.Language,
			Category:      req.Category,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// GetQuestionHandler serves question content. Grading material (the
// correct option, hidden test cases) is stripped unless the caller can
// author questions.
func GetQuestionHandler(svc *assessment.Service) http.HandlerFunc {
	type candidateQuestion struct {
		ID        string                `json:"id"`
		Kind      string                `json:"kind"`
		Prompt    string                `json:"prompt"`
		Options   []string              `json:"options,omitempty"`
		TestCases []assessment.TestCase `json:"test_cases,omitempty"`
		Language  string                `json:"language,omitempty"`
		Category  string                `json:"category,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := svc.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if rbac.Allowed(rbac.RoleFromContext(r.Context()), "question:create") {
			writeJSON(w, http.StatusOK, q)
			return
		}
		visible := make([]assessment.TestCase, 0, len(q.TestCases))
		for _, tc := range q.TestCases {
			if !tc.Hidden {
				visible = append(visible, tc)
			}
		}
		writeJSON(w, http.StatusOK, candidateQuestion{
			ID: q.ID, Kind: string(q.Kind), Prompt: q.Prompt, Options: q.Options,
			TestCases: visible, Language: q.Language, Category: q.Category,
		})
	}
}
