package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
)

// OpenAIClient requests narratives through the go-openai SDK. DeepSeek speaks the same
// protocol, so only the base URL differs.
type OpenAIClient struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewOpenAIClient(cfg Config, logger *slog.Logger) *OpenAIClient {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *OpenAIClient) client(key string) *openai.Client {
	oc := openai.DefaultConfig(key)
	oc.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	oc.HTTPClient = c.http
	return openai.NewClientWithConfig(oc)
}

// Narrate implements Requester.
func (c *OpenAIClient) Narrate(ctx context.Context, rec kyc.Record, credential string) (string, error) {
	key, err := c.cfg.credential(credential)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("narrative.openai.start", "req_id", rid, "model", c.cfg.Model)

	// the SDK omits a zero temperature, which the API reads as its own default
	temperature := c.cfg.temperature()
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	resp, err := c.client(key).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(rec)},
		},
		Temperature: temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		c.logger.Error("narrative.openai.error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyNarrative
	}

	c.logger.Info("narrative.openai.ok",
		"req_id", rid,
		"chars", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// New builds the Requester for provider ("http" or "openai").
func New(provider string, cfg Config, logger *slog.Logger) (Requester, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "http":
		return NewHTTPClient(cfg, logger), nil
	case "openai":
		return NewOpenAIClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown narrative provider %q", provider)
	}
}
