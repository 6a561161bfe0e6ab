package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the digest platform.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Twitter      TwitterConfig      `yaml:"twitter"`
	LLM          LLMConfig          `yaml:"llm"`
	Email        EmailConfig        `yaml:"email"`
	Storage      StorageConfig      `yaml:"storage"`
	Queue        QueueConfig        `yaml:"queue"`
	Fetch        FetchConfig        `yaml:"fetch"`
	Capture      CaptureConfig      `yaml:"capture"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Digest       DigestConfig       `yaml:"digest"`
	Distribution DistributionConfig `yaml:"distribution"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Redis        RedisConfig        `yaml:"redis"`
	LogLevel     string             `yaml:"log_level"`
}

// ServerConfig holds HTTP server configuration for the subscription API.
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Host    string `yaml:"host"`
	BaseURL string `yaml:"base_url"` // public URL used in verification links
}

// GetHost returns the listen host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// TwitterConfig holds Twitter API v2 credentials and limits.
type TwitterConfig struct {
	// Either a pre-minted bearer token or a consumer key/secret pair
	// for the app-only client-credentials grant.
	BearerToken    string `yaml:"bearer_token"`
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured HTTP timeout as a duration.
func (c TwitterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LLMConfig holds model selection for classification and summarization.
type LLMConfig struct {
	APIKey            string  `yaml:"api_key"`
	ModelID           string  `yaml:"model_id"`
	ClassifierVersion string  `yaml:"classifier_version"`
	SummaryTemp       float64 `yaml:"summary_temperature"`
}

// EmailConfig holds SES sending configuration.
type EmailConfig struct {
	FromEmail         string `yaml:"from_email"`
	FromName          string `yaml:"from_name"`
	NotificationQueue string `yaml:"notification_queue"` // bounce/complaint queue URL
	RatePerSecond     int    `yaml:"rate_per_second"`
}

// StorageConfig holds the S3 bucket and DynamoDB table names.
type StorageConfig struct {
	DataBucket          string `yaml:"data_bucket"`
	SubscribersTable    string `yaml:"subscribers_table"`
	ClassificationTable string `yaml:"classification_table"`
	RunsTable           string `yaml:"runs_table"`
	AWSRegion           string `yaml:"aws_region"`
	AWSProfile          string `yaml:"aws_profile"` // empty uses the default credential chain
}

// GetAWSProfile returns the AWS profile, with environment override. On
// ECS or Lambda the IAM role is used instead.
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// QueueConfig holds the classification queue settings.
type QueueConfig struct {
	URL                      string `yaml:"url"`
	VisibilityTimeoutSeconds int    `yaml:"visibility_timeout_seconds"`
	MaxReceives              int    `yaml:"max_receives"`
}

// VisibilityTimeout returns the visibility timeout as a duration.
func (c QueueConfig) VisibilityTimeout() time.Duration {
	return time.Duration(c.VisibilityTimeoutSeconds) * time.Second
}

// FetchConfig bounds the fetch stage.
type FetchConfig struct {
	MaxAccounts         int `yaml:"max_accounts"`
	MaxTweetsPerAccount int `yaml:"max_tweets_per_account"`
	LookbackDays        int `yaml:"lookback_days"`
	Concurrency         int `yaml:"concurrency"`
}

// CaptureConfig controls the visual capture stage.
type CaptureConfig struct {
	Enabled         bool `yaml:"enabled"`
	ViewportWidth   int  `yaml:"viewport_width"`
	ViewportHeight  int  `yaml:"viewport_height"`
	LoadTimeoutSecs int  `yaml:"load_timeout_seconds"`
	BrowserPoolSize int  `yaml:"browser_pool_size"`
}

// LoadTimeout returns the page-load timeout as a duration.
func (c CaptureConfig) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutSecs) * time.Second
}

// ClassifierConfig sizes the classification worker pool.
type ClassifierConfig struct {
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batch_size"`
}

// DigestConfig bounds digest assembly.
type DigestConfig struct {
	MaxPerCategory int `yaml:"max_per_category"`
}

// DistributionConfig bounds the email distribution stage.
type DistributionConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// PipelineConfig controls orchestration.
type PipelineConfig struct {
	Mode                  string `yaml:"mode"` // "short", "long", or "auto"
	MaxProcessingSeconds  int    `yaml:"max_processing_seconds"`
	CompletionPollSeconds int    `yaml:"completion_poll_seconds"`
}

// MaxProcessingTime returns the long-path deadline as a duration.
func (c PipelineConfig) MaxProcessingTime() time.Duration {
	return time.Duration(c.MaxProcessingSeconds) * time.Second
}

// RedisConfig holds the rate-limiter backend address.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config carrying only the defaults, for deployments
// configured purely through environment variables.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Twitter.BaseURL == "" {
		cfg.Twitter.BaseURL = "https://api.twitter.com/2"
	}
	if cfg.Twitter.TimeoutSeconds == 0 {
		cfg.Twitter.TimeoutSeconds = 30
	}
	if cfg.LLM.ClassifierVersion == "" {
		cfg.LLM.ClassifierVersion = "v1-seq-llm"
	}
	if cfg.LLM.SummaryTemp == 0 {
		cfg.LLM.SummaryTemp = 0.4
	}
	if cfg.Email.RatePerSecond == 0 {
		cfg.Email.RatePerSecond = 14
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Queue.VisibilityTimeoutSeconds == 0 {
		cfg.Queue.VisibilityTimeoutSeconds = 300
	}
	if cfg.Queue.MaxReceives == 0 {
		cfg.Queue.MaxReceives = 5
	}
	if cfg.Fetch.MaxAccounts == 0 {
		cfg.Fetch.MaxAccounts = 50
	}
	if cfg.Fetch.MaxTweetsPerAccount == 0 {
		cfg.Fetch.MaxTweetsPerAccount = 20
	}
	if cfg.Fetch.LookbackDays == 0 {
		cfg.Fetch.LookbackDays = 7
	}
	if cfg.Fetch.Concurrency == 0 {
		cfg.Fetch.Concurrency = 4
	}
	if cfg.Capture.ViewportWidth == 0 {
		cfg.Capture.ViewportWidth = 1200
	}
	if cfg.Capture.ViewportHeight == 0 {
		cfg.Capture.ViewportHeight = 1600
	}
	if cfg.Capture.LoadTimeoutSecs == 0 {
		cfg.Capture.LoadTimeoutSecs = 15
	}
	if cfg.Capture.BrowserPoolSize == 0 {
		cfg.Capture.BrowserPoolSize = 2
	}
	if cfg.Classifier.Workers == 0 {
		cfg.Classifier.Workers = 10
	}
	if cfg.Classifier.BatchSize == 0 {
		cfg.Classifier.BatchSize = 32
	}
	if cfg.Digest.MaxPerCategory == 0 {
		cfg.Digest.MaxPerCategory = 8
	}
	if cfg.Distribution.MaxRetries == 0 {
		cfg.Distribution.MaxRetries = 2
	}
	if cfg.Pipeline.Mode == "" {
		cfg.Pipeline.Mode = "auto"
	}
	if cfg.Pipeline.MaxProcessingSeconds == 0 {
		cfg.Pipeline.MaxProcessingSeconds = 840
	}
	if cfg.Pipeline.CompletionPollSeconds == 0 {
		cfg.Pipeline.CompletionPollSeconds = 10
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file is loaded first if present, so secrets can live in .env
// locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	return cfg, nil
}

// ApplyEnv overlays environment variables onto an existing config.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		cfg.Twitter.BearerToken = v
	}
	if v := os.Getenv("TWITTER_CONSUMER_KEY"); v != "" {
		cfg.Twitter.ConsumerKey = v
	}
	if v := os.Getenv("TWITTER_CONSUMER_SECRET"); v != "" {
		cfg.Twitter.ConsumerSecret = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL_ID"); v != "" {
		cfg.LLM.ModelID = v
	}
	if v := os.Getenv("CLASSIFIER_VERSION"); v != "" {
		cfg.LLM.ClassifierVersion = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("DATA_BUCKET"); v != "" {
		cfg.Storage.DataBucket = v
	}
	if v := os.Getenv("SUBSCRIBERS_TABLE"); v != "" {
		cfg.Storage.SubscribersTable = v
	}
	if v := os.Getenv("CLASSIFICATION_TABLE"); v != "" {
		cfg.Storage.ClassificationTable = v
	}
	if v := os.Getenv("RUNS_TABLE"); v != "" {
		cfg.Storage.RunsTable = v
	}
	if v := os.Getenv("QUEUE_URL"); v != "" {
		cfg.Queue.URL = v
	}
	if v := os.Getenv("NOTIFICATION_QUEUE_URL"); v != "" {
		cfg.Email.NotificationQueue = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PROCESSING_MODE"); v != "" {
		cfg.Pipeline.Mode = v
	}
	if n, ok := envInt("MAX_ACCOUNTS"); ok {
		cfg.Fetch.MaxAccounts = n
	}
	if n, ok := envInt("MAX_TWEETS_PER_ACCOUNT"); ok {
		cfg.Fetch.MaxTweetsPerAccount = n
	}
	if n, ok := envInt("FETCH_LOOKBACK_DAYS"); ok {
		cfg.Fetch.LookbackDays = n
	}
	if n, ok := envInt("MAX_PROCESSING_TIME_SECONDS"); ok {
		cfg.Pipeline.MaxProcessingSeconds = n
	}
	if n, ok := envInt("CLASSIFIER_WORKERS"); ok {
		cfg.Classifier.Workers = n
	}
	if n, ok := envInt("CLASSIFIER_BATCH_SIZE"); ok {
		cfg.Classifier.BatchSize = n
	}
	// Older deployments exported the queue-scoped name; the classifier
	// name wins when both are set.
	if n, ok := envInt("QUEUE_VISIBILITY_TIMEOUT"); ok {
		cfg.Queue.VisibilityTimeoutSeconds = n
	}
	if n, ok := envInt("CLASSIFIER_VISIBILITY_TIMEOUT"); ok {
		cfg.Queue.VisibilityTimeoutSeconds = n
	}
	if v := os.Getenv("VISUAL_CAPTURE_ENABLED"); v != "" {
		cfg.Capture.Enabled = v == "true" || v == "1"
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Stage names accepted by Validate.
const (
	StagePipeline = "pipeline"
	StageServer   = "server"
	StageWorker   = "worker"
)

// Validate checks that everything the named stage needs is present and
// in range. A failure here is fatal at startup; nothing is degraded.
func (c *Config) Validate(stage string) error {
	var missing []string

	need := func(name, val string) {
		if val == "" {
			missing = append(missing, name)
		}
	}

	need("DATA_BUCKET", c.Storage.DataBucket)
	need("SUBSCRIBERS_TABLE", c.Storage.SubscribersTable)

	switch stage {
	case StagePipeline:
		if c.Twitter.BearerToken == "" && (c.Twitter.ConsumerKey == "" || c.Twitter.ConsumerSecret == "") {
			missing = append(missing, "TWITTER_BEARER_TOKEN or TWITTER_CONSUMER_KEY/TWITTER_CONSUMER_SECRET")
		}
		need("FROM_EMAIL", c.Email.FromEmail)
		need("CLASSIFICATION_TABLE", c.Storage.ClassificationTable)
		if c.Pipeline.Mode == "long" {
			need("QUEUE_URL", c.Queue.URL)
		}
	case StageWorker:
		need("CLASSIFICATION_TABLE", c.Storage.ClassificationTable)
		need("QUEUE_URL", c.Queue.URL)
	case StageServer:
		// Subscriber API only touches the subscribers table and sends
		// verification emails.
		need("FROM_EMAIL", c.Email.FromEmail)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Fetch.MaxTweetsPerAccount < 5 {
		return fmt.Errorf("max_tweets_per_account must be at least 5, got %d", c.Fetch.MaxTweetsPerAccount)
	}
	if c.Fetch.LookbackDays < 1 || c.Fetch.LookbackDays > 14 {
		return fmt.Errorf("lookback_days must be in [1, 14], got %d", c.Fetch.LookbackDays)
	}
	switch c.Pipeline.Mode {
	case "short", "long", "auto":
	default:
		return fmt.Errorf("processing mode must be short, long, or auto, got %q", c.Pipeline.Mode)
	}
	if c.Classifier.Workers < 1 {
		return fmt.Errorf("classifier workers must be positive, got %d", c.Classifier.Workers)
	}

	return nil
}
