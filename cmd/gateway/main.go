package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	api "github.com/mockmate/mockmate-engine/internal/api/http"
	"github.com/mockmate/mockmate-engine/internal/assessment"
	auth "github.com/mockmate/mockmate-engine/internal/auth/middleware"
	"github.com/mockmate/mockmate-engine/internal/config"
	"github.com/mockmate/mockmate-engine/internal/db"
	"github.com/mockmate/mockmate-engine/internal/events"
	"github.com/mockmate/mockmate-engine/internal/grading"
	"github.com/mockmate/mockmate-engine/internal/logging"
	"github.com/mockmate/mockmate-engine/internal/rbac"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	log, err := logging.Init(cfg.LogDir, cfg.LogJSON)
	if err != nil {
		panic("init logger: " + err.Error())
	}
	defer log.Sync()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	store := assessment.NewSQLStore(dbh, cfg.DBDriver)

	// --- Grading ---
	var opts []grading.Option
	opts = append(opts, grading.WithFreeFormCredit(float64(cfg.FreeFormCreditPercent)/100))
	if cfg.RunnerURL != "" {
		opts = append(opts, grading.WithRunner(grading.NewHTTPRunner(cfg.RunnerURL, cfg.RunnerTimeout)))
	}
	engine := grading.NewEngine(opts...)

	svc := assessment.NewService(store, engine,
		assessment.WithEvents(events.NewLog(dbh, cfg.SiteID)),
		assessment.WithLogger(log))

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(api.RequestLogger(log))
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh, cfg.AdminUser, cfg.AdminPassHash))

	// Protected API (JWT → subject+role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Authoring
		pr.With(rbac.Require("definition:create")).
			Post("/definitions", api.CreateDefinitionHandler(svc))
		pr.With(rbac.Require("definition:list")).
			Get("/definitions", api.ListDefinitionsHandler(svc))
		pr.With(rbac.Require("definition:view")).
			Get("/definitions/{definitionID}", api.GetDefinitionHandler(svc))
		pr.With(rbac.Require("definition:duplicate")).
			Post("/definitions/{definitionID}/duplicate", api.DuplicateDefinitionHandler(svc))
		pr.With(rbac.Require("question:create")).
			Post("/questions", api.CreateQuestionHandler(svc))
		pr.With(rbac.Require("definition:view")).
			Get("/questions/{questionID}", api.GetQuestionHandler(svc))

		// Candidate flow
		pr.With(rbac.Require("session:create")).
			Post("/sessions", api.CreateSessionHandler(svc))
		pr.With(rbac.Require("session:resume")).
			Post("/sessions/resume", api.ResumeSessionHandler(svc))
		pr.With(rbac.RequireAny("session:view-own", "session:view-all")).
			Get("/sessions", api.ListSessionsHandler(svc))
		pr.With(rbac.RequireAny("session:view-own", "session:view-all")).
			Get("/sessions/{sessionID}", api.GetSessionHandler(svc))
		pr.With(rbac.Require("session:answer")).
			Post("/sessions/{sessionID}/answers", api.RecordAnswerHandler(svc))
		pr.With(rbac.Require("session:transition")).
			Post("/sessions/{sessionID}/transition", api.TransitionSessionHandler(svc))
		pr.With(rbac.Require("session:finalize")).
			Post("/sessions/{sessionID}/finalize", api.FinalizeSessionHandler(svc))
		pr.With(rbac.RequireAny("result:view-own", "result:view-all")).
			Get("/sessions/{sessionID}/result", api.GetResultHandler(svc))

		// Grading of pending answers
		pr.With(rbac.Require("session:grade")).
			Post("/sessions/{sessionID}/grades", api.ApplyManualGradesHandler(svc))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Info("listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("mode", string(cfg.Mode)),
		zap.String("db", cfg.DBDriver))
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
