package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dguyhimself/Ellie/internal/api"
	"github.com/dguyhimself/Ellie/internal/config"
	"github.com/dguyhimself/Ellie/internal/core"
	"github.com/dguyhimself/Ellie/internal/store"
	"github.com/dguyhimself/Ellie/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer dbStore.Close()

	llmService, err := core.NewLLMService(context.Background(), cfg.GeminiAPIKey, cfg.GenerationTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize LLM service")
	}
	defer llmService.Close()

	messenger, err := telegram.NewMessenger(cfg.TelegramToken, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Telegram messenger")
	}

	chatService := core.NewChatService(dbStore, llmService, messenger, cfg.InitialCredits, cfg.MaxHistoryTurns, logger)

	apiHandler := api.NewAPIHandler(chatService, logger)
	router := api.NewRouter(apiHandler, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 30*time.Second, // webhook requests block on generation
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting webhook server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	logger.Info().Msg("Server exited gracefully")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
