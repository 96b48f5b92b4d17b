// Package app assembles the pipeline from configuration for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/examlens/constants"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/extract"
	"github.com/joseph-ayodele/examlens/internal/llm"
	"github.com/joseph-ayodele/examlens/internal/llm/gemini"
	"github.com/joseph-ayodele/examlens/internal/llm/openai"
	"github.com/joseph-ayodele/examlens/internal/notify"
	"github.com/joseph-ayodele/examlens/internal/pipeline"
	"github.com/joseph-ayodele/examlens/internal/repository"
)

// Pipeline bundles a ready orchestrator with the resources it owns.
type Pipeline struct {
	Orchestrator *pipeline.Orchestrator
	Store        repository.ResultStore
	Broker       *notify.Broker[notify.Completion]

	redis  *redis.Client
	logger *slog.Logger
}

// NewExtractor builds the document extractor from config.
func NewExtractor(cfg common.ExtractConfig, logger *slog.Logger) *extract.Extractor {
	return extract.NewExtractor(extract.Config{
		Method:      cfg.Method,
		Pdftotext:   cfg.Pdftotext,
		MaxPages:    cfg.MaxPages,
		OCRFallback: cfg.OCRFallback,
		OCR: extract.OCRConfig{
			Pdftoppm:    cfg.Pdftoppm,
			Tesseract:   cfg.Tesseract,
			Lang:        cfg.TesseractLang,
			TessdataDir: cfg.TessdataDir,
			DPI:         cfg.OCRDPI,
		},
	}, nil, logger)
}

// NewLLMClient builds the configured inference client. The key is handed to
// the client and nowhere else.
func NewLLMClient(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Client, error) {
	switch cfg.Provider {
	case constants.ProviderGemini:
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case constants.ProviderOpenAI, "":
		c, err := openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("unknown llm provider %q", cfg.Provider))
	}
}

// Build opens the store, the inference client and the notifiers and wires
// them into an orchestrator. store may be nil to use the configured backend.
func Build(ctx context.Context, cfg *common.Config, store repository.ResultStore, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("app.build", "llm", cfg.LLM, "store", cfg.Store)

	client, err := NewLLMClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	validator, err := llm.NewResultValidator(logger)
	if err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}
	if store == nil {
		if store, err = repository.Open(ctx, cfg.Store, logger); err != nil {
			return nil, err
		}
	}

	p := &Pipeline{Store: store, Broker: notify.NewBroker[notify.Completion](), logger: logger}
	notifiers := notify.Multi{notify.NewBrokerNotifier(p.Broker, logger)}
	if cfg.Notify.RedisChannel != "" {
		p.redis = redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		notifiers = append(notifiers, notify.NewRedisPublisher(p.redis, cfg.Notify.RedisChannel, logger))
	}

	p.Orchestrator = pipeline.NewOrchestrator(
		NewExtractor(cfg.Extract, logger),
		client,
		validator,
		store,
		notifiers,
		pipeline.Config{
			Attempts:    cfg.Pipeline.Attempts,
			RetryDelay:  cfg.Pipeline.RetryDelay,
			CallTimeout: cfg.LLM.Timeout,
		},
		logger,
	)
	return p, nil
}

// Close releases the broker, the notifier connection and the store.
func (p *Pipeline) Close() {
	p.Broker.Shutdown()
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			p.logger.Warn("app.close.redis", "error", err)
		}
	}
	if err := p.Store.Close(); err != nil {
		p.logger.Warn("app.close.store", "error", err)
	}
}

// NewLogger returns the process logger: JSON to stderr at the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
