// The pipeline binary executes one digest run end to end, from the
// curated account list to subscriber inboxes. It also carries the
// data-request maintenance commands (export and purge).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/capture"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/classifier"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/config"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/digest"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/distribution"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/email"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/fetcher"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/oracle"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/orchestrator"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/distlock"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/queue"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/subscriber"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	source := flag.String("source", "manual", "run trigger: scheduled or manual")
	mode := flag.String("mode", "", "override processing mode: short, long, or auto")
	exportEmail := flag.String("export", "", "print the subscriber record for an email and exit")
	purgeEmail := flag.String("purge", "", "delete the subscriber record for an email and exit")
	flag.Parse()

	if err := run(*configPath, *source, *mode, *exportEmail, *purgeEmail); err != nil {
		logger.Error("pipeline: fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath, source, mode, exportEmail, purgeEmail string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := store.LoadAWSConfig(ctx, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
	if err != nil {
		return err
	}

	subs := subscriber.New(
		store.NewDynamoSubscriberStore(awsCfg, cfg.Storage.SubscribersTable),
		email.NewSESSender(awsCfg, cfg.Email.FromName),
		cfg.Email.FromEmail,
		cfg.Server.BaseURL,
	)

	if exportEmail != "" {
		return runExport(ctx, subs, exportEmail)
	}
	if purgeEmail != "" {
		return subs.Purge(ctx, purgeEmail)
	}

	if err := cfg.Validate(config.StagePipeline); err != nil {
		return err
	}
	if err := email.VerifyIdentity(ctx, awsCfg, cfg.Email.FromEmail); err != nil {
		return err
	}

	objects := store.NewS3ObjectStore(awsCfg, cfg.Storage.DataBucket)
	runs := store.NewDynamoRunStore(awsCfg, cfg.Storage.RunsTable)
	records := store.NewDynamoClassificationStore(awsCfg, cfg.Storage.ClassificationTable)

	llm := oracle.WithRetry(oracle.NewBedrockOracle(awsCfg, cfg.LLM.ModelID))

	var token fetcher.TokenSource = fetcher.StaticToken(cfg.Twitter.BearerToken)
	if cfg.Twitter.BearerToken == "" {
		token = fetcher.NewOAuthToken(cfg.Twitter.ConsumerKey, cfg.Twitter.ConsumerSecret)
	}

	fetch := fetcher.New(
		fetcher.NewClient(cfg.Twitter.BaseURL, token, cfg.Twitter.Timeout()),
		fetcher.Options{
			MaxTweetsPerAccount: cfg.Fetch.MaxTweetsPerAccount,
			LookbackDays:        cfg.Fetch.LookbackDays,
			Concurrency:         cfg.Fetch.Concurrency,
		})

	var q queue.Queue
	var capt orchestrator.CaptureStage
	if cfg.Capture.Enabled {
		q = queue.NewSQSQueue(awsCfg, cfg.Queue.URL)
		browser := capture.NewChromeBrowser(cfg.Capture.ViewportWidth, cfg.Capture.ViewportHeight, cfg.Capture.LoadTimeout())
		capt = capture.New(browser, cfg.Capture.BrowserPoolSize, llm, objects, q)
	}

	var limiter distribution.Limiter
	var lock *distlock.Lock
	if cfg.Redis.Addr != "" {
		redisLimiter, err := distribution.NewRedisLimiterFromAddr(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Email.RatePerSecond)
		if err != nil {
			return err
		}
		limiter = redisLimiter
		// The lock TTL outlives the run deadline so a crashed run frees
		// itself instead of blocking next week's trigger.
		lock = distlock.New(redisLimiter.Client(), "digest-run", cfg.Pipeline.MaxProcessingTime()+10*time.Minute)
	}

	var notifications email.NotificationSource
	if cfg.Email.NotificationQueue != "" {
		notifications = email.NewNotifications(queue.NewSQSQueue(awsCfg, cfg.Email.NotificationQueue))
	}

	distributor := distribution.New(subs,
		email.NewSESSender(awsCfg, cfg.Email.FromName),
		notifications, limiter,
		cfg.Email.FromEmail, cfg.Distribution.MaxRetries)

	orch := orchestrator.New(
		orchestrator.Options{
			Mode:                 cfg.Pipeline.Mode,
			VisualCaptureEnabled: cfg.Capture.Enabled,
			MaxAccounts:          cfg.Fetch.MaxAccounts,
			ExpectedPerAccount:   cfg.Fetch.MaxTweetsPerAccount,
			MaxProcessingTime:    cfg.Pipeline.MaxProcessingTime(),
			CompletionPoll:       time.Duration(cfg.Pipeline.CompletionPollSeconds) * time.Second,
			ClassifierVersion:    cfg.LLM.ClassifierVersion,
		},
		objects, runs, records, q,
		fetch, capt,
		classifier.New(llm, cfg.LLM.ClassifierVersion),
		digest.NewAssembler(llm, cfg.Digest.MaxPerCategory),
		distributor)

	if lock != nil {
		held, err := lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if !held {
			logger.Info("pipeline: another run holds the lock, skipping")
			return nil
		}
		defer lock.Release(context.Background())
	}

	trigger := orchestrator.Trigger{Source: source, Mode: mode}
	rec, err := orch.Run(ctx, trigger)
	if rec != nil {
		logger.Info("pipeline: run recorded", "run_id", rec.RunID, "status", rec.Status)
	}
	return err
}

func runExport(ctx context.Context, subs *subscriber.Controller, addr string) error {
	rec, err := subs.Export(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no subscriber record for %s", addr)
	}
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
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
