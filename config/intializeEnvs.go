package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	godotenv "github.com/joho/godotenv"

	"github.com/mahirjain10/edge-image-resize/internal/edge"
	"github.com/mahirjain10/edge-image-resize/internal/keys"
	"github.com/mahirjain10/edge-image-resize/internal/queue"
	"github.com/mahirjain10/edge-image-resize/internal/store"
	"github.com/mahirjain10/edge-image-resize/internal/transformation"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" env-default:"dev"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
	Http     HttpConfig
	Aws      AwsConfig
	RabbitMq RabbitMqConfig
	Resize   ResizeConfig
	Cache    CacheConfig
}

type HttpConfig struct {
	Addr      string `env:"HTTP_ADDR" env-default:"localhost:8080"`
	SeedDir   string `env:"SEED_DIR"`
	CacheSize int    `env:"EMULATOR_CACHE_SIZE" env-default:"256"`
}

type AwsConfig struct {
	Region          string        `env:"AWS_REGION" env-default:"us-east-1"`
	AccessKeyID     string        `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY"`
	BucketName      string        `env:"AWS_BUCKET_NAME"`
	Endpoint        string        `env:"AWS_S3_ENDPOINT"`
	UsePathStyle    bool          `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	Timeout         time.Duration `env:"AWS_S3_TIMEOUT" env-default:"10s"`
	RetryMaxTries   uint          `env:"AWS_S3_RETRY_MAX_TRIES" env-default:"3"`
}

type RabbitMqConfig struct {
	URL         string `env:"RABBITMQ_URL"`
	WarmQueue   string `env:"RABBITMQ_WARM_QUEUE" env-default:"warm_queue"`
	EventsQueue string `env:"RABBITMQ_EVENTS_QUEUE" env-default:"variant_events"`
	Exchange    string `env:"RABBITMQ_EXCHANGE" env-default:"image_resize"`
	Workers     int    `env:"RABBITMQ_WORKERS" env-default:"2"`
	Prefetch    int    `env:"RABBITMQ_PREFETCH" env-default:"4"`
}

type ResizeConfig struct {
	MaxDimension    int           `env:"RESIZE_MAX_DIMENSION" env-default:"4096"`
	ClampOversize   bool          `env:"RESIZE_CLAMP_OVERSIZE" env-default:"false"`
	Filter          string        `env:"RESIZE_FILTER" env-default:"lanczos"`
	Fit             string        `env:"RESIZE_FIT" env-default:"fill"`
	JPEGQuality     int           `env:"RESIZE_JPEG_QUALITY" env-default:"85"`
	MaxSourcePixels int           `env:"RESIZE_MAX_SOURCE_PIXELS" env-default:"50000000"`
	FetchTimeout    time.Duration `env:"RESIZE_FETCH_TIMEOUT" env-default:"5s"`
	ResizeTimeout   time.Duration `env:"RESIZE_TIMEOUT" env-default:"8s"`
	PersistTimeout  time.Duration `env:"RESIZE_PERSIST_TIMEOUT" env-default:"5s"`
	MaxBodyBytes    int           `env:"RESIZE_MAX_BODY_BYTES" env-default:"1048576"`
	WidthParam      string        `env:"RESIZE_WIDTH_PARAM" env-default:"width"`
	HeightParam     string        `env:"RESIZE_HEIGHT_PARAM" env-default:"height"`
}

type CacheConfig struct {
	DefaultTTL  time.Duration `env:"CACHE_DEFAULT_TTL" env-default:"8760h"`
	MinTTL      time.Duration `env:"CACHE_MIN_TTL" env-default:"2160h"`
	MaxTTL      time.Duration `env:"CACHE_MAX_TTL" env-default:"17520h"`
	FallbackTTL time.Duration `env:"CACHE_FALLBACK_TTL" env-default:"5m"`
	NegativeTTL time.Duration `env:"CACHE_NEGATIVE_TTL" env-default:"0s"`
}

// LoadDotEnv overlays the .env file matching APP_ENV onto the process
// environment and returns the file it loaded, or "" when none was found.
func LoadDotEnv() string {
	appEnv := os.Getenv("APP_ENV")
	var candidates []string
	switch appEnv {
	case "docker":
		candidates = []string{".env.docker"}
	case "dev", "":
		candidates = []string{".env.dev", ".env"}
	default:
		candidates = []string{".env." + appEnv, ".env"}
	}
	for _, fname := range candidates {
		if err := godotenv.Overload(fname); err == nil {
			return fname
		}
	}
	return ""
}

// Load reads the process environment into Config. Every field has a default,
// so Load succeeds in environments without variables such as Lambda@Edge.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// InitializeEnvs loads the .env file for APP_ENV, then the environment.
func InitializeEnvs() (*Config, string, error) {
	loaded := LoadDotEnv()
	cfg, err := Load()
	if err != nil {
		return nil, loaded, err
	}
	return cfg, loaded, nil
}

func (c *Config) Validate() error {
	if err := c.CachePolicy().Validate(); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}
	if c.Resize.MaxDimension <= 0 {
		return fmt.Errorf("RESIZE_MAX_DIMENSION must be positive")
	}
	if c.Resize.JPEGQuality < 1 || c.Resize.JPEGQuality > 100 {
		return fmt.Errorf("RESIZE_JPEG_QUALITY must be between 1 and 100")
	}
	if _, err := transformation.NewResizer(c.ResizeOptions()); err != nil {
		return fmt.Errorf("invalid resize config: %w", err)
	}
	if c.RabbitMq.Workers < 1 {
		return fmt.Errorf("RABBITMQ_WORKERS must be at least 1")
	}
	if (c.Aws.AccessKeyID == "") != (c.Aws.SecretAccessKey == "") {
		return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	return nil
}

// RequireBucket is checked by binaries that cannot learn the bucket from an event.
func (c *Config) RequireBucket() error {
	if c.Aws.BucketName == "" {
		return fmt.Errorf("AWS_BUCKET_NAME is missing")
	}
	return nil
}

func (c *Config) RequireRabbitMq() error {
	if c.RabbitMq.URL == "" || c.RabbitMq.WarmQueue == "" {
		return fmt.Errorf("RABBITMQ_URL or RABBITMQ_WARM_QUEUE is missing")
	}
	return nil
}

func (c *Config) CachePolicy() edge.CachePolicy {
	return edge.CachePolicy{
		DefaultTTL:  c.Cache.DefaultTTL,
		MinTTL:      c.Cache.MinTTL,
		MaxTTL:      c.Cache.MaxTTL,
		FallbackTTL: c.Cache.FallbackTTL,
		NegativeTTL: c.Cache.NegativeTTL,
		Params:      edge.QueryParams{Width: c.Resize.WidthParam, Height: c.Resize.HeightParam},
	}
}

func (c *Config) Deriver() keys.Deriver {
	return keys.NewDeriver(c.Resize.MaxDimension, c.Resize.ClampOversize)
}

func (c *Config) ResizeOptions() transformation.Options {
	return transformation.Options{
		Filter:          c.Resize.Filter,
		Fit:             transformation.Fit(c.Resize.Fit),
		JPEGQuality:     c.Resize.JPEGQuality,
		MaxSourcePixels: c.Resize.MaxSourcePixels,
		MaxDimension:    c.Resize.MaxDimension,
	}
}

func (c *Config) OriginOptions() edge.OriginOptions {
	return edge.OriginOptions{
		Policy:         c.CachePolicy(),
		Deriver:        c.Deriver(),
		FetchTimeout:   c.Resize.FetchTimeout,
		ResizeTimeout:  c.Resize.ResizeTimeout,
		PersistTimeout: c.Resize.PersistTimeout,
		MaxBodyBytes:   c.Resize.MaxBodyBytes,
	}
}

func (c *Config) RetryPolicy() store.RetryPolicy {
	policy := store.DefaultRetryPolicy()
	if c.Aws.RetryMaxTries > 0 {
		policy.MaxTries = c.Aws.RetryMaxTries
	}
	return policy
}

func (c *Config) QueueOptions() queue.Options {
	return queue.Options{
		URL:         c.RabbitMq.URL,
		Queue:       c.RabbitMq.WarmQueue,
		EventsQueue: c.RabbitMq.EventsQueue,
		Exchange:    c.RabbitMq.Exchange,
		Workers:     c.RabbitMq.Workers,
		Prefetch:    c.RabbitMq.Prefetch,
	}
}
