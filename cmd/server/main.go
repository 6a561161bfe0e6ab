// The server binary exposes the public subscription API: subscribe,
// verify, unsubscribe, and a health probe.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/api"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/config"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/email"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/subscriber"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("server: fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(config.StageServer); err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := store.LoadAWSConfig(ctx, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
	if err != nil {
		return err
	}

	// An unverified sending identity is a startup error, not something
	// to discover on the first subscribe.
	if err := email.VerifyIdentity(ctx, awsCfg, cfg.Email.FromEmail); err != nil {
		return err
	}

	subs := subscriber.New(
		store.NewDynamoSubscriberStore(awsCfg, cfg.Storage.SubscribersTable),
		email.NewSESSender(awsCfg, cfg.Email.FromName),
		cfg.Email.FromEmail,
		cfg.Server.BaseURL,
	)

	router := api.NewRouter(api.NewHandlers(subs), []string{cfg.Server.BaseURL})
	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		config.ApplyEnv(cfg)
		return cfg, nil
	}
	return cfg, err
}
