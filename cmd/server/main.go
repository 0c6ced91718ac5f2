package main

import (
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"hanquiz/internal/api"
	"hanquiz/internal/config"
	"hanquiz/internal/db"
	"hanquiz/internal/logger"
	"hanquiz/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			log.Fatal("OPENAI_API_KEY not found, configure it in the environment or .env")
		}
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		zlog.Fatal("open database", zap.Error(err))
	}
	defer conn.Close()

	extraction := services.NewExtractionService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint, zlog)
	generator := services.NewQuizGenerator(extraction, zlog)
	pdfService := services.NewPDFService()
	archive := services.NewArchiveService(conn)

	server := api.NewServer(generator, pdfService, archive, cfg.SampleImage, zlog)

	mux := http.NewServeMux()
	mux.HandleFunc("/", serveFile(filepath.Join(cfg.WebDir, "index.html")))
	mux.Handle("/api", server.Handler())
	mux.Handle("/api/", server.Handler())

	zlog.Info("hanquiz listening", zap.String("addr", cfg.HTTPAddr), zap.String("model", cfg.OpenAIModel))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation batches wait on the LLM
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatal("server failed", zap.Error(err))
	}
}

func serveFile(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		http.ServeFile(w, r, path)
	}
}
