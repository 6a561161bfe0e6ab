package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  base_url: "https://digest.example.com"

twitter:
  bearer_token: "test-bearer"
  timeout_seconds: 45

fetch:
  max_accounts: 25
  max_tweets_per_account: 10
  lookback_days: 7

classifier:
  workers: 5
  batch_size: 16

storage:
  data_bucket: "digest-data"
  subscribers_table: "subscribers"
  classification_table: "classifications"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://digest.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "test-bearer", cfg.Twitter.BearerToken)
	assert.Equal(t, 45, cfg.Twitter.TimeoutSeconds)
	assert.Equal(t, 25, cfg.Fetch.MaxAccounts)
	assert.Equal(t, 10, cfg.Fetch.MaxTweetsPerAccount)
	assert.Equal(t, 5, cfg.Classifier.Workers)
	assert.Equal(t, 16, cfg.Classifier.BatchSize)
	assert.Equal(t, "digest-data", cfg.Storage.DataBucket)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_bucket: "digest-data"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "https://api.twitter.com/2", cfg.Twitter.BaseURL)
	assert.Equal(t, "v1-seq-llm", cfg.LLM.ClassifierVersion)
	assert.Equal(t, 0.4, cfg.LLM.SummaryTemp)
	assert.Equal(t, 20, cfg.Fetch.MaxTweetsPerAccount)
	assert.Equal(t, 7, cfg.Fetch.LookbackDays)
	assert.Equal(t, 10, cfg.Classifier.Workers)
	assert.Equal(t, 8, cfg.Digest.MaxPerCategory)
	assert.Equal(t, 5, cfg.Queue.MaxReceives)
	assert.Equal(t, "auto", cfg.Pipeline.Mode)
	assert.Equal(t, 840, cfg.Pipeline.MaxProcessingSeconds)
	assert.Equal(t, 2, cfg.Capture.BrowserPoolSize)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, `
twitter:
  bearer_token: "file-token"
storage:
  data_bucket: "file-bucket"
`)

	t.Setenv("TWITTER_BEARER_TOKEN", "env-token")
	t.Setenv("DATA_BUCKET", "env-bucket")
	t.Setenv("MAX_TWEETS_PER_ACCOUNT", "15")
	t.Setenv("PROCESSING_MODE", "long")
	t.Setenv("VISUAL_CAPTURE_ENABLED", "true")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Twitter.BearerToken)
	assert.Equal(t, "env-bucket", cfg.Storage.DataBucket)
	assert.Equal(t, 15, cfg.Fetch.MaxTweetsPerAccount)
	assert.Equal(t, "long", cfg.Pipeline.Mode)
	assert.True(t, cfg.Capture.Enabled)
}

func TestApplyEnvVisibilityTimeoutNames(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	t.Setenv("QUEUE_VISIBILITY_TIMEOUT", "120")
	ApplyEnv(cfg)
	assert.Equal(t, 120, cfg.Queue.VisibilityTimeoutSeconds)

	// The classifier-scoped name is canonical and wins when both are set.
	t.Setenv("CLASSIFIER_VISIBILITY_TIMEOUT", "300")
	ApplyEnv(cfg)
	assert.Equal(t, 300, cfg.Queue.VisibilityTimeoutSeconds)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func validBase() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Storage.DataBucket = "digest-data"
	cfg.Storage.SubscribersTable = "subscribers"
	cfg.Storage.ClassificationTable = "classifications"
	cfg.Twitter.BearerToken = "token"
	cfg.Email.FromEmail = "digest@example.com"
	cfg.Queue.URL = "https://sqs.us-east-1.amazonaws.com/1/classify"
	return cfg
}

func TestValidatePipelineOK(t *testing.T) {
	assert.NoError(t, validBase().Validate(StagePipeline))
}

func TestValidateMissingRequired(t *testing.T) {
	cfg := validBase()
	cfg.Twitter.BearerToken = ""
	cfg.Storage.DataBucket = ""

	err := cfg.Validate(StagePipeline)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWITTER_BEARER_TOKEN")
	assert.Contains(t, err.Error(), "DATA_BUCKET")
}

func TestValidateConsumerKeysReplaceBearerToken(t *testing.T) {
	cfg := validBase()
	cfg.Twitter.BearerToken = ""
	cfg.Twitter.ConsumerKey = "key"
	cfg.Twitter.ConsumerSecret = "secret"
	assert.NoError(t, cfg.Validate(StagePipeline))

	cfg.Twitter.ConsumerSecret = ""
	assert.Error(t, cfg.Validate(StagePipeline))
}

func TestValidateTweetFloor(t *testing.T) {
	cfg := validBase()
	cfg.Fetch.MaxTweetsPerAccount = 3

	err := cfg.Validate(StagePipeline)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 5")
}

func TestValidateLookbackRange(t *testing.T) {
	for _, days := range []int{0, 15} {
		cfg := validBase()
		cfg.Fetch.LookbackDays = days
		assert.Error(t, cfg.Validate(StagePipeline), "lookback_days=%d", days)
	}
	cfg := validBase()
	cfg.Fetch.LookbackDays = 14
	assert.NoError(t, cfg.Validate(StagePipeline))
}

func TestValidateMode(t *testing.T) {
	cfg := validBase()
	cfg.Pipeline.Mode = "turbo"
	assert.Error(t, cfg.Validate(StagePipeline))
}

func TestValidateWorkerStageNeedsQueue(t *testing.T) {
	cfg := validBase()
	cfg.Queue.URL = ""
	err := cfg.Validate(StageWorker)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_URL")
}

func TestValidateShortModeSkipsQueue(t *testing.T) {
	cfg := validBase()
	cfg.Pipeline.Mode = "short"
	cfg.Queue.URL = ""
	assert.NoError(t, cfg.Validate(StagePipeline))
}

func TestTimeoutHelpers(t *testing.T) {
	assert.Equal(t, int64(45), int64(TwitterConfig{TimeoutSeconds: 45}.Timeout().Seconds()))
	assert.Equal(t, int64(300), int64(QueueConfig{VisibilityTimeoutSeconds: 300}.VisibilityTimeout().Seconds()))
	assert.Equal(t, int64(840), int64(PipelineConfig{MaxProcessingSeconds: 840}.MaxProcessingTime().Seconds()))
}
