package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"mindfuel/internal/books"
	"mindfuel/internal/catalog"
	"mindfuel/internal/config"
	"mindfuel/internal/docstore"
	"mindfuel/internal/identity"
	"mindfuel/internal/quotes"
	"mindfuel/internal/search"
	"mindfuel/internal/server"
	"mindfuel/internal/trivia"
	"mindfuel/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	searchQuiet, err := config.ParseSearchQuiet(cfg.SearchQuiet)
	if err != nil {
		log.Fatalf("failed to parse search quiet period: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	docs := docstore.NewClient(cfg.DocstoreURL)
	bookCatalog := books.NewClient(cfg.BooksURL)

	var sessions trivia.SessionStore
	if cfg.RedisAddr != "" {
		sessions = trivia.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, sessionTTL)
	} else {
		slog.Warn("no redis addr configured, trivia sessions are in-process only")
		sessions = trivia.NewMemorySessionStore()
	}

	httpServer, err := server.New(server.Config{
		Identity: identity.NewClient(cfg.IdentityURL, cfg.IdentityAPIKey),
		Docs:     docs,
		Catalog:  catalog.New(docs, bookCatalog, ""),
		Books:    bookCatalog,
		Quotes:   quotes.NewClient(cfg.QuotesURL),
		Trivia: trivia.NewService(trivia.ServiceConfig{
			Questions: trivia.NewClient(cfg.TriviaURL),
			Sessions:  sessions,
			Scores:    docs,
			BatchSize: cfg.TriviaBatch,
		}),
		Search:        search.New(searchQuiet),
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
