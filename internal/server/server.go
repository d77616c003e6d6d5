package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cmpc-libros/apiserver/config"
	"github.com/cmpc-libros/apiserver/internal/db"
	"github.com/cmpc-libros/apiserver/internal/handlers"
	"github.com/cmpc-libros/apiserver/internal/middleware"
	"github.com/cmpc-libros/apiserver/internal/services"
	"github.com/cmpc-libros/apiserver/internal/storage"
	"github.com/cmpc-libros/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	logger     *zap.SugaredLogger
}

// New constructs a fully wired Server: database, storage backend, stores,
// services, routes, and the bootstrap admin account.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	imageStore, err := newStorage(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := imageStore.Ensure(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("prepare image storage: %w", err)
	}

	bookRepo := store.NewBookRepository(dbConn)
	userRepo := store.NewUserRepository(dbConn)
	auditRepo := store.NewAuditRepository(dbConn)

	imageService := services.NewImageService(imageStore, logger)
	bookService := services.NewBookService(bookRepo, imageService)
	userService := services.NewUserService(userRepo)
	auditService := services.NewAuditService(auditRepo, logger)

	created, err := userService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Infow("created bootstrap admin account", "username", cfg.Admin.Username)
	}

	tokenTTL := time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute
	authHandler := handlers.NewAuthHandler(userService, []byte(jwtSecret), tokenTTL, cfg.Auth.CookieDomain, cfg.Auth.CookieSecure)
	requireAuth := middleware.RequireAuth([]byte(jwtSecret), userService)
	auditor := middleware.NewAuditor(auditService)
	authLimiter := middleware.AuthRateLimiter()

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestLog(logger),
		middleware.CORS(cfg.CORSAllowedOrigins),
		chimw.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, authHandler, auditor, requireAuth, authLimiter.Middleware)
	})
	router.Route("/books", func(r chi.Router) {
		handlers.BookRouter(r, bookService, auditor, requireAuth)
	})
	router.Route("/audit", func(r chi.Router) {
		handlers.AuditRouter(r, auditService, auditor, requireAuth)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		logger:     logger,
	}, nil
}

// newStorage selects the image storage backend from configuration.
func newStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendLocal, "":
		client, err := storage.NewLocalClient(cfg.Storage.LocalDir)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(client), nil
	case config.StorageBackendMinio:
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(client), nil
	case config.StorageBackendGCS:
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func newLogger() (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("ENV") == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Infow("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and closes resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.db != nil {
		_ = s.db.Close()
	}
	_ = s.logger.Sync()
	return err
}
