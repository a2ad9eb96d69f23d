package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Config for the OpenAI-compatible chat client (OpenRouter by default).
type Config struct {
	APIKey      string        // if empty, falls back to env OPENROUTER_API_KEY
	BaseURL     string        // default https://openrouter.ai/api/v1
	Model       string        // e.g., "google/gemini-2.5-flash"
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
	Referer     string        // OpenRouter attribution headers
	Title       string
	// DisableSchema sends neither the JSON Schema message nor response_format,
	// for providers that reject them.
	DisableSchema bool
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "google/gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Title == "" {
		cfg.Title = "Kouss Kouss menu extractor"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }
