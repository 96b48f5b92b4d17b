package common

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/examlens/constants"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Extract  ExtractConfig  `yaml:"extract"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Store    StoreConfig    `yaml:"store"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// ExtractConfig controls how documents are turned into text.
type ExtractConfig struct {
	Method    string `yaml:"method"` // auto | native | pdftotext | ocr
	Pdftotext string `yaml:"pdftotext"`
	MaxPages  int    `yaml:"max_pages"` // 0 = no limit

	OCRFallback   bool   `yaml:"ocr_fallback"`
	Pdftoppm      string `yaml:"pdftoppm"`
	Tesseract     string `yaml:"tesseract"`
	TesseractLang string `yaml:"tesseract_lang"`
	TessdataDir   string `yaml:"tessdata_dir"`
	OCRDPI        int    `yaml:"ocr_dpi"`
}

// LLMConfig holds the inference backend settings. APIKey never leaves this
// struct except through the client constructors.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai | gemini
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LogValue keeps the API key out of logs.
func (c LLMConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", c.Provider),
		slog.String("model", c.Model),
		slog.String("base_url", c.BaseURL),
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Float64("temperature", float64(c.Temperature)),
		slog.Duration("timeout", c.Timeout),
	)
}

// PipelineConfig holds run orchestration settings.
type PipelineConfig struct {
	Attempts   int           `yaml:"attempts"` // inference attempts per run, 1 = no retry
	RetryDelay time.Duration `yaml:"retry_delay"`
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// StoreConfig selects and configures the result store backend.
type StoreConfig struct {
	Backend   string `yaml:"backend"` // file | sqlite | postgres | redis
	Path      string `yaml:"path"`
	DSN       string `yaml:"dsn"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

// LogValue hides DSN credentials.
func (c StoreConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", c.Backend),
		slog.String("path", c.Path),
		slog.Bool("dsn_set", c.DSN != ""),
		slog.String("redis_addr", c.RedisAddr),
	)
}

// NotifyConfig holds optional external notification settings.
type NotifyConfig struct {
	RedisChannel string `yaml:"redis_channel"` // empty disables redis publish
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:    ":5000",
			GRPCAddr:    ":8080",
			MaxUploadMB: 25,
		},
		Extract: ExtractConfig{
			Method:        constants.ExtractAuto,
			Pdftotext:     "pdftotext",
			OCRFallback:   true,
			Pdftoppm:      "pdftoppm",
			Tesseract:     "tesseract",
			TesseractLang: "eng",
			OCRDPI:        300,
		},
		LLM: LLMConfig{
			Provider:    constants.ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   4096,
			Timeout:     3 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Attempts:   2,
			RetryDelay: time.Second,
			Workers:    2,
			QueueSize:  32,
			RunTimeout: 10 * time.Minute,
		},
		Store: StoreConfig{
			Backend:  constants.StoreFile,
			Path:     "./data/result.json",
			RedisKey: "examlens:result:current",
		},
	}
}

// LoadConfig layers defaults, an optional YAML file, a .env file and the
// process environment, in that order of increasing precedence. path may be
// empty, in which case EXAMLENS_CONFIG is consulted.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path == "" {
		path = os.Getenv("EXAMLENS_CONFIG")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.HTTPAddr = getEnv("HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Server.GRPCAddr = getEnv("GRPC_ADDR", cfg.Server.GRPCAddr)
	cfg.Server.MaxUploadMB = getEnvAsInt("MAX_UPLOAD_MB", cfg.Server.MaxUploadMB)

	cfg.Extract.Method = getEnv("EXTRACT_METHOD", cfg.Extract.Method)
	cfg.Extract.Pdftotext = getEnv("PDFTOTEXT_BIN", cfg.Extract.Pdftotext)
	cfg.Extract.MaxPages = getEnvAsInt("EXTRACT_MAX_PAGES", cfg.Extract.MaxPages)
	cfg.Extract.OCRFallback = getEnvAsBool("EXTRACT_OCR_FALLBACK", cfg.Extract.OCRFallback)
	cfg.Extract.Pdftoppm = getEnv("PDFTOPPM_BIN", cfg.Extract.Pdftoppm)
	cfg.Extract.Tesseract = getEnv("TESSERACT_BIN", cfg.Extract.Tesseract)
	cfg.Extract.TesseractLang = getEnv("TESSERACT_LANG", cfg.Extract.TesseractLang)
	cfg.Extract.TessdataDir = getEnv("TESSDATA_DIR", cfg.Extract.TessdataDir)
	cfg.Extract.OCRDPI = getEnvAsInt("OCR_DPI", cfg.Extract.OCRDPI)

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Temperature = getEnvAsFloat32("LLM_TEMPERATURE", cfg.LLM.Temperature)
	cfg.LLM.MaxTokens = getEnvAsInt("LLM_MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", cfg.LLM.Timeout)
	switch cfg.LLM.Provider {
	case constants.ProviderGemini:
		cfg.LLM.APIKey = getEnv("GEMINI_API_KEY", cfg.LLM.APIKey)
	default:
		cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	}
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)

	cfg.Pipeline.Attempts = getEnvAsInt("INFERENCE_ATTEMPTS", cfg.Pipeline.Attempts)
	cfg.Pipeline.RetryDelay = getEnvAsDuration("INFERENCE_RETRY_DELAY", cfg.Pipeline.RetryDelay)
	cfg.Pipeline.Workers = getEnvAsInt("PIPELINE_WORKERS", cfg.Pipeline.Workers)
	cfg.Pipeline.QueueSize = getEnvAsInt("PIPELINE_QUEUE_SIZE", cfg.Pipeline.QueueSize)
	cfg.Pipeline.RunTimeout = getEnvAsDuration("PIPELINE_RUN_TIMEOUT", cfg.Pipeline.RunTimeout)

	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = getEnv("STORE_PATH", cfg.Store.Path)
	cfg.Store.DSN = getEnv("DB_URL", cfg.Store.DSN)
	cfg.Store.RedisAddr = getEnv("REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.RedisKey = getEnv("REDIS_RESULT_KEY", cfg.Store.RedisKey)

	cfg.Notify.RedisChannel = getEnv("REDIS_NOTIFY_CHANNEL", cfg.Notify.RedisChannel)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration. requireKey is false for commands
// that never reach the inference backend.
func (c *Config) Validate(requireKey bool) error {
	v := NewValidator()
	v.Field("extract.method", c.Extract.Method,
		OneOf(constants.ExtractAuto, constants.ExtractNative, constants.ExtractPdftotext, constants.ExtractOCR))
	v.Field("extract.max_pages", c.Extract.MaxPages, NonNegative)
	v.Field("extract.ocr_dpi", c.Extract.OCRDPI, NonNegative)
	v.Field("llm.provider", c.LLM.Provider, OneOf(constants.ProviderOpenAI, constants.ProviderGemini))
	v.Field("llm.model", c.LLM.Model, Required)
	v.Field("llm.timeout", c.LLM.Timeout, Positive)
	v.Field("llm.temperature", c.LLM.Temperature, NonNegative)
	if requireKey {
		v.Field("llm.api_key", c.LLM.APIKey, Required)
	}
	v.Field("pipeline.attempts", c.Pipeline.Attempts, Positive)
	v.Field("pipeline.retry_delay", c.Pipeline.RetryDelay, NonNegative)
	v.Field("pipeline.workers", c.Pipeline.Workers, Positive)
	v.Field("pipeline.queue_size", c.Pipeline.QueueSize, Positive)
	v.Field("server.max_upload_mb", c.Server.MaxUploadMB, Positive)
	v.Field("store.backend", c.Store.Backend,
		OneOf(constants.StoreFile, constants.StoreSQLite, constants.StorePostgres, constants.StoreRedis))
	switch c.Store.Backend {
	case constants.StoreFile, constants.StoreSQLite:
		v.Field("store.path", c.Store.Path, Required)
	case constants.StorePostgres:
		v.Field("store.dsn", c.Store.DSN, Required)
	case constants.StoreRedis:
		v.Field("store.redis_addr", c.Store.RedisAddr, Required)
		v.Field("store.redis_key", c.Store.RedisKey, Required)
	}
	if c.Notify.RedisChannel != "" {
		v.Field("store.redis_addr", c.Store.RedisAddr, Required)
	}
	return v.Error()
}
