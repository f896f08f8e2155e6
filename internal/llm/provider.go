package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// ProviderKind is an explicit backend variant selected by configuration,
// not by sniffing model-name prefixes at call sites.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
)

// ProviderConfig configures a model backend.
type ProviderConfig struct {
	Kind        ProviderKind
	Model       string
	APIKey      string
	BaseURL     string // provider default when empty
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// NewProvider builds the configured backend. Unknown kinds are a
// configuration error, surfaced at startup rather than per job.
func NewProvider(cfg ProviderConfig, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	hc := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Kind {
	case ProviderOpenAI:
		return newOpenAIProvider(cfg, hc, logger), nil
	case ProviderAnthropic:
		return newAnthropicProvider(cfg, hc, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %q", cfg.Kind)
	}
}

// postJSON sends a JSON request and returns the raw response body. Callers
// decide the URL and headers; no provider shape is assumed here.
func postJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, error) {
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("llm.http.send_error", "url", url, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("llm.http.response_body_close_error", "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	logger.Debug("llm.http.response",
		"url", url, "status", resp.StatusCode, "bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode/100 != 2 {
		return raw, fmt.Errorf("provider status %d: %s", resp.StatusCode, truncateBody(raw, 512))
	}
	return raw, nil
}

// readImageBase64 loads a rendered page and returns its base64 payload.
// Pages are always PNG; the renderer owns that invariant.
func readImageBase64(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read page image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func truncateBody(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
