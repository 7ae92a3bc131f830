package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/contest/internal/config"
	"github.com/garnizeh/contest/internal/contest"
)

// Deps are the collaborators the router needs beyond the config.
type Deps struct {
	Service *contest.Service
	// Ping backs /health; nil reports healthy.
	Ping func(ctx context.Context) error
	// Uploads serves /uploads/{token}; nil when blobs live elsewhere.
	Uploads http.Handler
}

func SetupRoutes(cfg *config.Config, version, buildTime string, d Deps) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(SettingsMiddleware(d.Service.Settings))

	systemHandler := &SystemHandler{Ping: d.Ping}
	authHandler := NewAuthHandler(d.Service, cfg.JWTSecret, cfg.TokenDuration)
	competitionHandler := NewCompetitionHandler(d.Service)
	challengeHandler := NewChallengeHandler(d.Service, cfg.Uploads.MaxBytes)
	adminHandler := NewAdminHandler(d.Service, cfg.Uploads.MaxBytes)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/v1/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/v1/platform", competitionHandler.Platform).Methods("GET")
	r.HandleFunc("/v1/competitions", competitionHandler.List).Methods("GET")
	r.HandleFunc("/api/leaderboard/{id:[0-9]+}", competitionHandler.Leaderboard).Methods("GET")
	r.HandleFunc("/api/competitions/{id:[0-9]+}/stats", competitionHandler.Stats).Methods("GET")
	if d.Uploads != nil {
		r.Handle("/uploads/{token}", d.Uploads).Methods("GET", "HEAD")
	}

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	authV1 := apiV1.PathPrefix("/auth").Subrouter()
	authV1.HandleFunc("/logout", authHandler.Logout).Methods("POST")
	authV1.HandleFunc("/password", authHandler.ChangePassword).Methods("POST")

	apiV1.HandleFunc("/competitions/{id:[0-9]+}", competitionHandler.View).Methods("GET")
	apiV1.HandleFunc("/challenges/{id:[0-9]+}", challengeHandler.View).Methods("GET")
	apiV1.HandleFunc("/challenges/{id:[0-9]+}/submissions", challengeHandler.Submit).Methods("POST")
	apiV1.HandleFunc("/me/submissions", challengeHandler.MySubmissions).Methods("GET")

	admin := apiV1.PathPrefix("/admin").Subrouter()
	admin.Use(RequireAdmin(d.Service.User))

	admin.HandleFunc("/dashboard", adminHandler.Dashboard).Methods("GET")

	admin.HandleFunc("/competitions", adminHandler.ListCompetitions).Methods("GET")
	admin.HandleFunc("/competitions", adminHandler.CreateCompetition).Methods("POST")
	admin.HandleFunc("/competitions/import", adminHandler.ImportCompetition).Methods("POST")
	admin.HandleFunc("/competitions/export", adminHandler.ExportAll).Methods("GET")
	admin.HandleFunc("/competitions/{id:[0-9]+}", adminHandler.GetCompetition).Methods("GET")
	admin.HandleFunc("/competitions/{id:[0-9]+}", adminHandler.UpdateCompetition).Methods("PUT")
	admin.HandleFunc("/competitions/{id:[0-9]+}", adminHandler.DeleteCompetition).Methods("DELETE")
	admin.HandleFunc("/competitions/{id:[0-9]+}/start", adminHandler.StartCompetition).Methods("POST")
	admin.HandleFunc("/competitions/{id:[0-9]+}/pause", adminHandler.PauseCompetition).Methods("POST")
	admin.HandleFunc("/competitions/{id:[0-9]+}/stop", adminHandler.StopCompetition).Methods("POST")
	admin.HandleFunc("/competitions/{id:[0-9]+}/reset", adminHandler.ResetCompetition).Methods("POST")
	admin.HandleFunc("/competitions/{id:[0-9]+}/duplicate", adminHandler.DuplicateCompetition).Methods("POST")
	admin.HandleFunc("/competitions/{id:[0-9]+}/export", adminHandler.ExportCompetition).Methods("GET")
	admin.HandleFunc("/competitions/{id:[0-9]+}/challenges", adminHandler.ListChallenges).Methods("GET")

	admin.HandleFunc("/challenges", adminHandler.CreateChallenge).Methods("POST")
	admin.HandleFunc("/challenges/{id:[0-9]+}", adminHandler.GetChallenge).Methods("GET")
	admin.HandleFunc("/challenges/{id:[0-9]+}", adminHandler.UpdateChallenge).Methods("PUT")
	admin.HandleFunc("/challenges/{id:[0-9]+}", adminHandler.DeleteChallenge).Methods("DELETE")
	admin.HandleFunc("/challenges/{id:[0-9]+}/toggle", adminHandler.ToggleChallenge).Methods("POST")
	admin.HandleFunc("/challenges/{id:[0-9]+}/copy", adminHandler.CopyChallenge).Methods("POST")
	admin.HandleFunc("/challenges/{id:[0-9]+}/move-up", adminHandler.MoveChallengeUp).Methods("POST")
	admin.HandleFunc("/challenges/{id:[0-9]+}/move-down", adminHandler.MoveChallengeDown).Methods("POST")
	admin.HandleFunc("/challenges/{id:[0-9]+}/export", adminHandler.ExportChallenge).Methods("GET")

	admin.HandleFunc("/submissions", adminHandler.ListSubmissions).Methods("GET")
	admin.HandleFunc("/submissions/{id:[0-9]+}", adminHandler.GetSubmission).Methods("GET")
	admin.HandleFunc("/submissions/{id:[0-9]+}/review", adminHandler.ReviewSubmission).Methods("POST")
	admin.HandleFunc("/history", adminHandler.ListHistory).Methods("GET")
	admin.HandleFunc("/history/{id:[0-9]+}", adminHandler.GetHistory).Methods("GET")
	admin.HandleFunc("/jobs/dead", adminHandler.DeadLetters).Methods("GET")

	admin.HandleFunc("/users", adminHandler.ListUsers).Methods("GET")
	admin.HandleFunc("/users/{id:[0-9]+}/toggle-admin", adminHandler.ToggleAdmin).Methods("POST")
	admin.HandleFunc("/users/{id:[0-9]+}/password", adminHandler.ResetPassword).Methods("POST")
	admin.HandleFunc("/users/{id:[0-9]+}", adminHandler.DeleteUser).Methods("DELETE")

	admin.HandleFunc("/settings", adminHandler.GetSettings).Methods("GET")
	admin.HandleFunc("/settings", adminHandler.UpdateSettings).Methods("PUT")
	admin.HandleFunc("/images", adminHandler.UploadImage).Methods("POST")

	return r
}
