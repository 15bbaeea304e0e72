package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Classifier ClassifierConfig
	FactCheck  FactCheckConfig
	LLM        LLMConfig
	Video      VideoConfig
	Media      MediaConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Retry      RetryConfig
	Breaker    BreakerConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   int
	WriteTimeout  int
	BodyLimit     int
	IsDevelopment bool
	AllowOrigins  string
}

type ClassifierConfig struct {
	Endpoint          string
	APIToken          string
	FakeLabel         string
	TimeoutSec        int
	RequestsPerSecond float64
}

type FactCheckConfig struct {
	Endpoint         string
	APIKey           string
	MaxResults       int
	TimeoutSec       int
	LanguageCode     string
	ResolveURLClaims bool
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type VideoConfig struct {
	DefaultStride int
	MaxStride     int
	FFmpegPath    string
	FFprobePath   string
}

type MediaConfig struct {
	TmpDir          string
	MaxImageBytes   int64
	MaxVideoBytes   int64
	DownloadTimeout int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
	Burst                int
}

type RetryConfig struct {
	MaxAttempts    int
	InitialDelayMs int
	MaxDelayMs     int
}

// BreakerConfig controls the circuit breakers around external services.
// They are off by default so each request reaches the services on its own.
type BreakerConfig struct {
	Enabled bool
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/veritas")

	v.SetEnvPrefix("VERITAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Video.DefaultStride < 1 {
		return fmt.Errorf("video.defaultStride must be positive, got %d", c.Video.DefaultStride)
	}
	if c.Video.MaxStride < c.Video.DefaultStride {
		return fmt.Errorf("video.maxStride %d is below video.defaultStride %d", c.Video.MaxStride, c.Video.DefaultStride)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported llm.provider %q", c.LLM.Provider)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxAttempts must be at least 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 600)
	v.SetDefault("server.bodyLimit", 524288000)
	v.SetDefault("server.isDevelopment", false)
	v.SetDefault("server.allowOrigins", "*")

	v.SetDefault("classifier.endpoint", "https://api-inference.huggingface.co/models/prithivMLmods/deepfake-detector-model-v1")
	v.SetDefault("classifier.apiToken", "")
	v.SetDefault("classifier.fakeLabel", "fake")
	v.SetDefault("classifier.timeoutSec", 30)
	v.SetDefault("classifier.requestsPerSecond", 0)

	v.SetDefault("factcheck.endpoint", "https://factchecktools.googleapis.com/v1alpha1")
	v.SetDefault("factcheck.apiKey", "")
	v.SetDefault("factcheck.maxResults", 5)
	v.SetDefault("factcheck.timeoutSec", 10)
	v.SetDefault("factcheck.languageCode", "")
	v.SetDefault("factcheck.resolveURLClaims", false)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 60)

	v.SetDefault("video.defaultStride", 30)
	v.SetDefault("video.maxStride", 60)
	v.SetDefault("video.ffmpegPath", "ffmpeg")
	v.SetDefault("video.ffprobePath", "ffprobe")

	v.SetDefault("media.tmpDir", "")
	v.SetDefault("media.maxImageBytes", 20971520)
	v.SetDefault("media.maxVideoBytes", 524288000)
	v.SetDefault("media.downloadTimeout", 120)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.maxRequestsPerMinute", 30)
	v.SetDefault("ratelimit.burst", 5)

	v.SetDefault("retry.maxAttempts", 1)
	v.SetDefault("retry.initialDelayMs", 500)
	v.SetDefault("retry.maxDelayMs", 5000)

	v.SetDefault("breaker.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
