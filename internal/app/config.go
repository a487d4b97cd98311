package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yungbote/coursegen/internal/data/db"
	"github.com/yungbote/coursegen/internal/jobs/worker"
	"github.com/yungbote/coursegen/internal/modules/coursegen"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/openai"
	"github.com/yungbote/coursegen/internal/platform/qdrant"
	"github.com/yungbote/coursegen/internal/realtime/bus"
	"github.com/yungbote/coursegen/internal/temporalx"
)

const (
	RunnerModeDB       = "db"
	RunnerModeTemporal = "temporal"
)

type Config struct {
	Log           LogConfig           `mapstructure:"log"`
	DB            DBConfig            `mapstructure:"db"`
	Redis         RedisConfig         `mapstructure:"redis"`
	OpenAI        OpenAIConfig        `mapstructure:"openai"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
	Temporal      TemporalConfig      `mapstructure:"temporal"`
	Runner        RunnerConfig        `mapstructure:"runner"`
	Generation    GenerationConfig    `mapstructure:"generation"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Debug  bool   `mapstructure:"debug"`
}

type RedisConfig struct {
	// Addr empty keeps realtime events in process.
	Addr         string `mapstructure:"addr"`
	Channel      string `mapstructure:"channel"`
	StreamMaxLen int64  `mapstructure:"stream_max_len"`
}

type OpenAIConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	EmbedModel string        `mapstructure:"embed_model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type QdrantConfig struct {
	// URL empty disables chapter references.
	URL              string        `mapstructure:"url"`
	Collection       string        `mapstructure:"collection"`
	VectorDim        int           `mapstructure:"vector_dim"`
	NamespacePrefix  string        `mapstructure:"namespace_prefix"`
	Distance         string        `mapstructure:"distance"`
	Timeout          time.Duration `mapstructure:"timeout"`
	CreateCollection bool          `mapstructure:"create_collection"`
}

type TemporalConfig struct {
	Address               string `mapstructure:"address"`
	Namespace             string `mapstructure:"namespace"`
	TaskQueue             string `mapstructure:"task_queue"`
	AutoRegisterNamespace bool   `mapstructure:"auto_register_namespace"`
}

type RunnerConfig struct {
	Mode               string        `mapstructure:"mode"`
	Concurrency        int           `mapstructure:"concurrency"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	StaleRunning       time.Duration `mapstructure:"stale_running"`
	DefaultMaxAttempts int           `mapstructure:"default_max_attempts"`
	DefaultMaxDuration time.Duration `mapstructure:"default_max_duration"`
	RetryMinBackoff    time.Duration `mapstructure:"retry_min_backoff"`
	RetryMaxBackoff    time.Duration `mapstructure:"retry_max_backoff"`
}

type GenerationConfig struct {
	ChapterStrategy   string         `mapstructure:"chapter_strategy"`
	InlineParallelism int            `mapstructure:"inline_parallelism"`
	SchemaAttempts    int            `mapstructure:"schema_attempts"`
	PlanAttempts      int            `mapstructure:"plan_attempts"`
	PlanBackoff       time.Duration  `mapstructure:"plan_backoff"`
	QuizSizing        map[string]int `mapstructure:"quiz_sizing"`
	ReferenceTopK     int            `mapstructure:"reference_top_k"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	BodyLimit    int64         `mapstructure:"body_limit"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateWindow   time.Duration `mapstructure:"rate_window"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
	MetricsAddr    string  `mapstructure:"metrics_addr"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	Stdout         bool    `mapstructure:"stdout"`
	Endpoint       string  `mapstructure:"endpoint"`
	Insecure       bool    `mapstructure:"insecure"`
	Headers        string  `mapstructure:"headers"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	Environment    string  `mapstructure:"environment"`
}

// LoadConfig reads defaults, then the config file, then COURSEGEN_* env vars.
// An empty path looks for config.yaml in ./config and the working directory.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("COURSEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.mode", "development")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "host=localhost port=5432 user=postgres dbname=coursegen sslmode=disable")
	v.SetDefault("db.debug", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel", "coursegen:sse")
	v.SetDefault("redis.stream_max_len", 500)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com")
	v.SetDefault("openai.model", "gpt-4.1-mini")
	v.SetDefault("openai.embed_model", "text-embedding-3-small")
	v.SetDefault("openai.timeout", "120s")
	v.SetDefault("openai.max_retries", 4)

	v.SetDefault("qdrant.url", "")
	v.SetDefault("qdrant.collection", "coursegen_chapters")
	v.SetDefault("qdrant.vector_dim", 1536)
	v.SetDefault("qdrant.namespace_prefix", "coursegen")
	v.SetDefault("qdrant.distance", "Cosine")
	v.SetDefault("qdrant.timeout", "10s")
	v.SetDefault("qdrant.create_collection", true)

	v.SetDefault("temporal.address", "localhost:7233")
	v.SetDefault("temporal.namespace", "coursegen")
	v.SetDefault("temporal.task_queue", "coursegen")
	v.SetDefault("temporal.auto_register_namespace", false)

	v.SetDefault("runner.mode", RunnerModeDB)
	v.SetDefault("runner.concurrency", 4)
	v.SetDefault("runner.poll_interval", "1s")
	v.SetDefault("runner.stale_running", "15m")
	v.SetDefault("runner.default_max_attempts", 5)
	v.SetDefault("runner.default_max_duration", "10m")
	v.SetDefault("runner.retry_min_backoff", "2s")
	v.SetDefault("runner.retry_max_backoff", "2m")

	v.SetDefault("generation.chapter_strategy", string(coursegen.StrategyFanout))
	v.SetDefault("generation.inline_parallelism", 4)
	v.SetDefault("generation.schema_attempts", 3)
	v.SetDefault("generation.plan_attempts", 3)
	v.SetDefault("generation.plan_backoff", "1s")
	v.SetDefault("generation.reference_top_k", 3)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("http.body_limit", 1<<20)
	v.SetDefault("http.rate_limit", 30)
	v.SetDefault("http.rate_window", "1m")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "0s")

	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.metrics_addr", ":9090")
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.sample_ratio", 1.0)
	v.SetDefault("observability.environment", "local")
}

func (c Config) Validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case "postgres", "postgresql", "sqlite":
	default:
		return fmt.Errorf("config: db.driver must be postgres or sqlite, got %q", c.DB.Driver)
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("config: db.dsn is required")
	}
	switch c.Runner.Mode {
	case RunnerModeDB, RunnerModeTemporal:
	default:
		return fmt.Errorf("config: runner.mode must be db or temporal, got %q", c.Runner.Mode)
	}
	if c.Runner.Mode == RunnerModeTemporal && strings.TrimSpace(c.Temporal.Address) == "" {
		return fmt.Errorf("config: temporal.address is required when runner.mode=temporal")
	}
	if c.Runner.Concurrency < 1 {
		return fmt.Errorf("config: runner.concurrency must be at least 1")
	}
	if c.Runner.RetryMaxBackoff > 0 && c.Runner.RetryMaxBackoff < c.Runner.RetryMinBackoff {
		return fmt.Errorf("config: runner.retry_max_backoff is below retry_min_backoff")
	}
	if c.Qdrant.URL != "" {
		if err := qdrant.ValidateConfig(c.QdrantConfig()); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if err := c.CourseGenConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c Config) DBConfig() db.Config {
	return db.Config{Driver: c.DB.Driver, DSN: c.DB.DSN, Debug: c.DB.Debug}
}

func (c Config) BusConfig() bus.Config {
	return bus.Config{Addr: c.Redis.Addr, Channel: c.Redis.Channel, StreamMaxLen: c.Redis.StreamMaxLen}
}

func (c Config) OpenAIConfig() openai.Config {
	return openai.Config{
		APIKey:     c.OpenAI.APIKey,
		BaseURL:    c.OpenAI.BaseURL,
		Model:      c.OpenAI.Model,
		EmbedModel: c.OpenAI.EmbedModel,
		Timeout:    c.OpenAI.Timeout,
		MaxRetries: c.OpenAI.MaxRetries,
	}
}

func (c Config) QdrantConfig() qdrant.Config {
	return qdrant.Config{
		URL:              c.Qdrant.URL,
		Collection:       c.Qdrant.Collection,
		NamespacePrefix:  c.Qdrant.NamespacePrefix,
		VectorDim:        c.Qdrant.VectorDim,
		Distance:         c.Qdrant.Distance,
		Timeout:          c.Qdrant.Timeout,
		CreateCollection: c.Qdrant.CreateCollection,
	}
}

// TemporalConfig layers the TEMPORAL_* environment (TLS paths) under the
// values configured here.
func (c Config) TemporalConfig() temporalx.Config {
	return temporalx.Config{
		Address:               c.Temporal.Address,
		Namespace:             c.Temporal.Namespace,
		TaskQueue:             c.Temporal.TaskQueue,
		AutoRegisterNamespace: c.Temporal.AutoRegisterNamespace,
	}.Merge(temporalx.LoadConfig())
}

func (c Config) WorkerConfig() worker.Config {
	return worker.Config{
		Concurrency:  c.Runner.Concurrency,
		PollInterval: c.Runner.PollInterval,
		StaleRunning: c.Runner.StaleRunning,
	}
}

func (c Config) CourseGenConfig() coursegen.Config {
	return coursegen.Config{
		ChapterStrategy:   coursegen.ChapterStrategy(c.Generation.ChapterStrategy),
		InlineParallelism: c.Generation.InlineParallelism,
		SchemaAttempts:    c.Generation.SchemaAttempts,
		PlanAttempts:      c.Generation.PlanAttempts,
		PlanBackoff:       c.Generation.PlanBackoff,
		QuizSizing:        c.Generation.QuizSizing,
		ReferenceTopK:     c.Generation.ReferenceTopK,
		JobMaxAttempts:    c.Runner.DefaultMaxAttempts,
		JobTimeout:        c.Runner.DefaultMaxDuration,
	}
}

func (c Config) TracingConfig(version string) observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Observability.TracingEnabled,
		ServiceName: "coursegen",
		Environment: c.Observability.Environment,
		Version:     version,
		Endpoint:    c.Observability.Endpoint,
		Insecure:    c.Observability.Insecure,
		Headers:     observability.ParseHeaders(c.Observability.Headers),
		SampleRatio: c.Observability.SampleRatio,
		Stdout:      c.Observability.Stdout,
	}
}
