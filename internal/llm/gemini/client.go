package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/llm"
)

// Config for the Gemini client. All values are explicit.
type Config struct {
	APIKey      string
	BaseURL     string // optional override of the Gemini API endpoint
	Model       string // e.g., "gemini-2.5-flash"
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type Client struct {
	cfg    Config
	client *genai.Client
	logger *slog.Logger
}

// NewClient builds a Gemini API client. The backend is fixed to the Gemini API
// and the key must be supplied, so the SDK never falls back to environment lookups.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{cfg: cfg, client: client, logger: logger}, nil
}

func (c *Client) Name() string { return "gemini" }

// Complete sends one GenerateContent call with system messages as the system
// instruction and user messages as the contents.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	gc := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.cfg.Temperature),
		ResponseMIMEType: "application/json",
	}
	if c.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}
	if sys := req.System(); sys != "" {
		gc.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	var contents []*genai.Content
	for _, u := range req.User() {
		contents = append(contents, genai.NewContentFromText(u, genai.RoleUser))
	}

	c.logger.Info("llm.gemini.start",
		"req_id", rid,
		"run_id", common.RunIDFromContext(ctx),
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"parts", len(contents),
	)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, gc)
	if err != nil {
		status := statusOf(err)
		if status == 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("no response within %s: %w", c.cfg.Timeout, err)
		}
		te := common.NewTransportError(status, err)
		c.logger.Error("llm.gemini.failed",
			"req_id", rid, "status", status, "retryable", te.Retryable, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", te
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		reason := ""
		if len(resp.Candidates) > 0 {
			reason = string(resp.Candidates[0].FinishReason)
		}
		c.logger.Error("llm.gemini.empty", "req_id", rid, "finish_reason", reason)
		return "", &common.TransportError{Status: http.StatusOK, Err: fmt.Errorf("empty gemini response (finish reason %q)", reason)}
	}

	c.logger.Info("llm.gemini.ok",
		"req_id", rid,
		"content_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func statusOf(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
