package narrative

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/joseph-ayodele/kyc-extractor/internal/kyc"
)

const (
	DefaultBaseURL     = "https://api.deepseek.com/v1"
	DefaultModel       = "deepseek-chat"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 300
	DefaultTimeout     = 30 * time.Second

	// APIKeyEnv is read when neither the call nor the config carries a credential.
	APIKeyEnv = "DEEPSEEK_API_KEY"
)

var (
	ErrMissingCredential = errors.New("narrative: missing api credential")
	ErrEmptyNarrative    = errors.New("narrative: empty response content")
	ErrMalformedResponse = errors.New("narrative: unexpected response body")
)

// Requester asks a language model for a short risk narrative about a record. Any
// transport, status or decoding failure is returned as an error.
//
//go:generate mockgen -source=narrative.go -destination=../pipeline/mocks/mock_narrative.go -package=mocks
type Requester interface {
	Narrate(ctx context.Context, rec kyc.Record, credential string) (string, error)
}

// Config for the chat-completion clients.
type Config struct {
	BaseURL     string        // default https://api.deepseek.com/v1
	Model       string        // default deepseek-chat
	APIKey      string        // used when a call passes no credential; falls back to env DEEPSEEK_API_KEY
	Temperature *float32      // nil -> 0.3; zero is sent as zero
	MaxTokens   int           // default 300
	Timeout     time.Duration // per call, also the http client timeout
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv(APIKeyEnv)
	}
	if c.Temperature == nil {
		t := float32(DefaultTemperature)
		c.Temperature = &t
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

func (c Config) temperature() float32 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

func (c Config) credential(perCall string) (string, error) {
	if perCall != "" {
		return perCall, nil
	}
	if c.APIKey != "" {
		return c.APIKey, nil
	}
	return "", ErrMissingCredential
}
