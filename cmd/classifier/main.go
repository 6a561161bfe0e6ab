// The classifier binary is the long-path worker: it drains the
// classification queue, runs the two-call protocol per artifact, and
// writes classification records until it is signalled to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/classifier"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/config"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/oracle"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/queue"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("classifier: fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(config.StageWorker); err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := store.LoadAWSConfig(ctx, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
	if err != nil {
		return err
	}

	pool := classifier.NewPool(
		classifier.PoolConfig{
			Workers:    cfg.Classifier.Workers,
			BatchSize:  cfg.Classifier.BatchSize,
			Visibility: time.Duration(cfg.Queue.VisibilityTimeoutSeconds) * time.Second,
		},
		queue.NewSQSQueue(awsCfg, cfg.Queue.URL),
		store.NewS3ObjectStore(awsCfg, cfg.Storage.DataBucket),
		store.NewDynamoClassificationStore(awsCfg, cfg.Storage.ClassificationTable),
		classifier.New(
			oracle.WithRetry(oracle.NewBedrockOracle(awsCfg, cfg.LLM.ModelID)),
			cfg.LLM.ClassifierVersion))

	pool.Run(ctx)
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
