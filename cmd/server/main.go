package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/rpattn/colmap/internal/api"
	"github.com/rpattn/colmap/internal/config"
	"github.com/rpattn/colmap/internal/db"
	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/internal/export"
	"github.com/rpattn/colmap/internal/ingestion"
	"github.com/rpattn/colmap/internal/mapping"
	"github.com/rpattn/colmap/internal/middleware"
	"github.com/rpattn/colmap/internal/repository"
	"github.com/rpattn/colmap/internal/session"
	"github.com/rpattn/colmap/internal/transformations"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml")
	flag.Parse()

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	schema, ok := domain.BuiltinSchema(cfg.Session.Schema)
	if !ok {
		log.Fatalf("Unknown target schema %q (available: %v)", cfg.Session.Schema, domain.BuiltinSchemaNames())
	}

	// Setup session store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer closeStore()

	persister := session.NewPersister(store, session.WithKey(cfg.Session.Key))
	machine := mapping.NewMachine(restoreState(ctx, persister, schema))
	machine.Subscribe(persister.Listener())

	// Create services
	ingestService := ingestion.NewService(ingestion.WithMaxBytes(cfg.Ingestion.MaxUploadBytes()))
	evaluator := transformations.NewEvaluator(cfg.Transform.CacheSize)
	exportService := export.NewService(
		export.WithExportDirectory(cfg.Export.Dir),
		export.WithDelimiter(cfg.Export.DelimiterRune()),
		export.WithRetention(cfg.Export.Retention),
		export.WithDownloadTokenTTL(cfg.Export.TokenTTL),
	)
	go exportService.RunPruner(ctx, time.Minute)

	handler := api.NewHandler(machine, ingestService, evaluator, exportService)
	handler.MaxUpload = cfg.Ingestion.MaxUploadBytes()

	// Router Setup
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware)
	r.Use(chimiddleware.Recoverer)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	r.Use(corsHandler.Handler)

	handler.RegisterRoutes(r)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting column mapping server on %s (schema=%s store=%s)", cfg.Server.Addr, schema.Name, cfg.Session.Store)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// openStore builds the configured session store. The returned func releases it.
func openStore(ctx context.Context, cfg config.Config) (session.Store, func(), error) {
	switch cfg.Session.Store {
	case config.StoreMemory:
		return session.NewMemoryStore(), func() {}, nil
	case config.StoreFile:
		store, err := session.NewFileStore(cfg.Session.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.StorePostgres:
		if err := db.RunMigrations(cfg.Database); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSessionStateRepository(conn.Pool), conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

func restoreState(ctx context.Context, persister *session.Persister, schema domain.TargetSchema) mapping.State {
	snap, ok := persister.Load(ctx)
	if !ok {
		return mapping.NewState(schema)
	}
	state, err := snap.State(schema)
	if err != nil {
		log.Printf("[session] discarding stored state: %v", err)
		return mapping.NewState(schema)
	}
	log.Printf("[session] restored %d columns, %d connections (schema=%s)", len(state.SourceColumns()), state.EdgeCount(), state.Schema.Name)
	return state
}
