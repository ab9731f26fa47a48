package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-teamsession/internal/config"
	"github.com/npezzotti/go-teamsession/internal/coordinator"
	"github.com/npezzotti/go-teamsession/internal/database"
	"github.com/npezzotti/go-teamsession/internal/server"
)

type TeamSessionApp struct {
	log            *log.Logger
	db             database.SessionRepository
	mux            *http.Server
	coord          *coordinator.Coordinator
	hub            *server.Hub
	signingKey     []byte
	allowedOrigins []string
}

func NewTeamSessionApp(mux *http.ServeMux, logger *log.Logger, coord *coordinator.Coordinator, hub *server.Hub, db database.SessionRepository, cfg *config.Config) *TeamSessionApp {
	s := &TeamSessionApp{
		log:            logger,
		db:             db,
		coord:          coord,
		hub:            hub,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.accountMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/account", s.accountMiddleware(s.getAccount))
	mux.Handle("PUT /api/account", s.accountMiddleware(s.updateAccount))

	mux.Handle("POST /api/sessions", s.accountMiddleware(s.createSession))
	mux.Handle("POST /api/sessions/join", s.accountMiddleware(s.joinSession))
	mux.Handle("GET /api/sessions/{id}", s.authMiddleware(s.sessionHandler(s.coord.Get)))
	mux.Handle("POST /api/sessions/{id}/start", s.authMiddleware(s.sessionHandler(s.coord.Start)))
	mux.Handle("POST /api/sessions/{id}/leave", s.authMiddleware(s.sessionHandler(s.coord.Leave)))
	mux.Handle("POST /api/sessions/{id}/end", s.authMiddleware(s.sessionHandler(s.coord.End)))
	mux.Handle("POST /api/sessions/{id}/messages", s.accountMiddleware(s.sendMessage))
	mux.Handle("GET /api/sessions/{id}/messages", s.authMiddleware(s.listMessages))
	mux.Handle("GET /api/sessions/{id}/transcript", s.authMiddleware(s.exportTranscript))
	mux.Handle("POST /api/sessions/{id}/score", s.authMiddleware(s.awardScore))
	mux.Handle("GET /api/history", s.authMiddleware(s.history))
	mux.Handle("GET /api/stats", s.authMiddleware(s.userStats))
	mux.Handle("GET /ws", s.accountMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}
	return s
}

func (s *TeamSessionApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *TeamSessionApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
