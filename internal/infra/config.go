package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"studio/internal/pipeline"
	"studio/internal/qualitygate"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	LogLevel    string
	Port        string
	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int
	StoreDriver string
	SQLitePath  string
	StoragePath string
	RedisURL    string
	GeoIPDBPath string

	EvaluatorProvider string
	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	OpenAIOrg         string

	QwenAPIKey        string
	QwenBaseURL       string
	QwenModel         string
	QwenRatePerSecond float64
	QwenCostCredits   int

	GateFastPathThreshold float64
	GateBlockBelow        float64
	GateWarnMax           float64
	GateHeuristicWeight   float64
	GateModelWeight       float64
	GateEvaluatorTimeout  time.Duration

	EnrichTimeout     time.Duration
	GenerationTimeout time.Duration
	CriticTimeout     time.Duration
	PersistTimeout    time.Duration
	MaxInputImages    int

	OTelEnabled    bool
	OTelEndpoint   string
	OTelSampleRate float64

	WorkerPollInterval time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	Locales       []string
	DefaultLocale string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. A .env file in the working directory is read first;
// real environment variables win.
func LoadConfig() (*Config, error) {
	cfg := readConfig()
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	if err := cfg.validateEvaluator(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadToolConfig is LoadConfig for offline tools that never open a store.
func LoadToolConfig() (*Config, error) {
	cfg := readConfig()
	if err := cfg.validateEvaluator(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfig() *Config {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}

	gate := qualitygate.DefaultConfig()
	timeouts := pipeline.DefaultTimeouts()
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    strings.ToLower(os.Getenv("LOG_LEVEL")),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:  getEnvInt("DB_MIN_CONNS", 1),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		SQLitePath:  getEnv("SQLITE_PATH", "studio.db"),
		StoragePath: getEnv("STORAGE_PATH", "./data/generations"),
		RedisURL:    os.Getenv("REDIS_URL"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		EvaluatorProvider: strings.ToLower(getEnv("EVALUATOR_PROVIDER", "gemini")),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash-lite"),
		GeminiBaseURL:     os.Getenv("GEMINI_BASE_URL"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:         os.Getenv("OPENAI_ORG"),

		QwenAPIKey:        os.Getenv("QWEN_API_KEY"),
		QwenBaseURL:       getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		QwenModel:         getEnv("QWEN_MODEL", "qwen-image-plus"),
		QwenRatePerSecond: getEnvFloat("QWEN_RATE_PER_SECOND", 2),
		QwenCostCredits:   getEnvInt("QWEN_COST_CREDITS", 1),

		GateFastPathThreshold: getEnvFloat("GATE_FAST_PATH_THRESHOLD", gate.FastPathThreshold),
		GateBlockBelow:        getEnvFloat("GATE_BLOCK_BELOW", gate.BlockBelow),
		GateWarnMax:           getEnvFloat("GATE_WARN_MAX", gate.WarnMax),
		GateHeuristicWeight:   getEnvFloat("GATE_HEURISTIC_WEIGHT", gate.HeuristicWeight),
		GateModelWeight:       getEnvFloat("GATE_MODEL_WEIGHT", gate.ModelWeight),
		GateEvaluatorTimeout:  getEnvDuration("GATE_EVALUATOR_TIMEOUT_MS", time.Millisecond, gate.EvaluatorTimeout),

		EnrichTimeout:     getEnvDuration("ENRICH_TIMEOUT_MS", time.Millisecond, timeouts.Enrich),
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT_SECONDS", time.Second, timeouts.Generation),
		CriticTimeout:     getEnvDuration("CRITIC_TIMEOUT_MS", time.Millisecond, timeouts.Critic),
		PersistTimeout:    getEnvDuration("PERSIST_TIMEOUT_SECONDS", time.Second, timeouts.Persist),
		MaxInputImages:    getEnvInt("MAX_INPUT_IMAGES", 4),

		OTelEnabled:    getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRate: getEnvFloat("OTEL_SAMPLE_RATE", 1),

		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL_MS", time.Millisecond, 2*time.Second),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		Locales:       getEnvList("LOCALES", []string{"en", "id"}),
		DefaultLocale: strings.TrimSpace(getEnv("DEFAULT_LOCALE", "en")),
	}
	return cfg
}

func (c *Config) validateStore() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=%s", StoreDriverSQLite)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

func (c *Config) validateEvaluator() error {
	switch c.EvaluatorProvider {
	case "gemini", "openai", "none":
		return nil
	default:
		return fmt.Errorf("unsupported EVALUATOR_PROVIDER %q", c.EvaluatorProvider)
	}
}

// GateConfig returns the quality gate tuning, normalized.
func (c *Config) GateConfig() qualitygate.Config {
	return qualitygate.Config{
		FastPathThreshold: c.GateFastPathThreshold,
		BlockBelow:        c.GateBlockBelow,
		WarnMax:           c.GateWarnMax,
		HeuristicWeight:   c.GateHeuristicWeight,
		ModelWeight:       c.GateModelWeight,
		EvaluatorTimeout:  c.GateEvaluatorTimeout,
	}.Normalize()
}

// PipelineTimeouts returns the per-stage budgets.
func (c *Config) PipelineTimeouts() pipeline.Timeouts {
	return pipeline.Timeouts{
		Enrich:     c.EnrichTimeout,
		Generation: c.GenerationTimeout,
		Critic:     c.CriticTimeout,
		Persist:    c.PersistTimeout,
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration reads an integer count of unit.
func getEnvDuration(key string, unit, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i > 0 {
			return time.Duration(i) * unit
		}
	}
	return fallback
}

// getEnvList reads a comma separated list, dropping blank entries.
func getEnvList(key string, fallback []string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
