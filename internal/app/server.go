package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/documind/internal/api/middlewares"
	"github.com/markdave123-py/documind/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// Handlers groups the HTTP handlers mounted by NewServer.
type Handlers struct {
	Chat      *handlers.ChatHandler
	Documents *handlers.DocumentHandler
	Projects  *handlers.ProjectHandler
}

// NewRouter builds the route tree. Everything under /api requires a bearer token.
func NewRouter(cfg *config.Config, h Handlers, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

		api.Post("/chat", h.Chat.Chat)
		api.Post("/suggest", h.Chat.Suggest)
		api.Get("/chat/history", h.Chat.AllHistory)

		api.Route("/documents", func(docs chi.Router) {
			docs.Post("/", h.Documents.UploadDocument)
			docs.Get("/", h.Documents.GetDocuments)
			docs.Delete("/", h.Documents.DeleteAllDocuments)

			docs.Route("/{id}", func(doc chi.Router) {
				doc.Get("/", h.Documents.GetDocument)
				doc.Patch("/", h.Documents.UpdateDocument)
				doc.Delete("/", h.Documents.DeleteDocument)
				doc.Post("/open", h.Documents.OpenDocument)
				doc.Get("/chunks/count", h.Documents.ChunkCount)

				doc.Get("/messages", h.Chat.History)
				doc.Post("/messages", h.Chat.SaveMessage)
				doc.Delete("/messages", h.Chat.ClearHistory)
			})
		})

		api.Get("/storage", h.Documents.StorageUsage)

		api.Get("/projects", h.Projects.ListProjects)
		api.Post("/projects", h.Projects.CreateProject)
		api.Delete("/projects/{id}", h.Projects.DeleteProject)
	})

	return r
}

// NewServer builds the HTTP server around the router.
func NewServer(cfg *config.Config, h Handlers, log *zap.Logger) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, h, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv, log: log.Named("server")}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
