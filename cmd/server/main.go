package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sharenotes/internal/auth"
	"sharenotes/internal/config"
	"sharenotes/internal/db"
	"sharenotes/internal/files"
	mcpserver "sharenotes/internal/mcp"
	"sharenotes/internal/notes"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Context for startup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Pick the catalog backend: MongoDB when configured, file-backed otherwise
	var noteStore notes.Store
	var userStore auth.UserStore
	if cfg.MongoURI != "" {
		logger.Info("connecting to MongoDB", "uri", cfg.MongoURI)
		database, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			log.Fatalf("failed to connect to MongoDB: %v", err)
		}
		logger.Info("connected to MongoDB")

		mongoNotes := notes.NewMongoStore(database)
		if err := mongoNotes.EnsureIndexes(ctx); err != nil {
			logger.Warn("failed to ensure note indexes", "error", err)
		}
		mongoUsers := auth.NewMongoUserStore(database)
		if err := mongoUsers.EnsureIndexes(ctx); err != nil {
			logger.Warn("failed to ensure user indexes", "error", err)
		}
		noteStore = mongoNotes
		userStore = mongoUsers
	} else {
		logger.Info("no MONGO_URI set, using file-backed store", "dir", cfg.DataDir)
		jsonStore, err := notes.NewJSONStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("failed to open file-backed store: %v", err)
		}
		noteStore = jsonStore
		userStore = auth.NewMemoryUserStore()
	}

	// Wire dependencies
	fileStore, err := files.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		log.Fatalf("failed to open uploads dir: %v", err)
	}

	noteSvc := notes.NewService(noteStore, fileStore, logger)
	noteHandler := notes.NewHandler(noteSvc, fileStore, logger)

	authSvc := auth.NewService(userStore, []byte(cfg.JWTSecret), cfg.TokenTTL)
	authHandler := auth.NewHandler(authSvc, logger)

	// Create MCP server
	mcpSrv := mcpserver.NewServer(noteSvc)

	// HTTP router
	mux := http.NewServeMux()

	// Auth endpoints
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// REST API endpoints
	mux.HandleFunc("POST /api/notes/upload", auth.Require(authSvc, noteHandler.UploadNote))
	mux.HandleFunc("GET /api/notes", noteHandler.ListNotes)
	mux.HandleFunc("GET /api/notes/{id}", noteHandler.GetNote)
	mux.HandleFunc("GET /api/notes/{id}/download", noteHandler.DownloadNote)
	mux.HandleFunc("POST /api/notes/{id}/rate", auth.Require(authSvc, noteHandler.RateNote))
	mux.HandleFunc("DELETE /api/notes/{id}", auth.Require(authSvc, noteHandler.DeleteNote))

	// Uploaded PDFs
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(fileStore.Dir()))))

	// MCP endpoint (HTTP transport)
	// MCP uses POST for requests and GET for SSE streams
	mcpHTTP := server.NewStreamableHTTPServer(mcpSrv)
	mux.Handle("POST /mcp", mcpHTTP)
	mux.Handle("GET /mcp", mcpHTTP)
	mux.Handle("DELETE /mcp", mcpHTTP)

	// Metrics and health
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withCORS(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Port)

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	logger.Info("server stopped")
}

// withCORS allows the SPA frontend to call the API from another origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
