package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const anthropicAPIVersion = "2023-06-01"

type anthropicProvider struct {
	cfg  ProviderConfig
	http *http.Client
	log  *slog.Logger
}

func newAnthropicProvider(cfg ProviderConfig, hc *http.Client, logger *slog.Logger) *anthropicProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	return &anthropicProvider{cfg: cfg, http: hc, log: logger}
}

func (p *anthropicProvider) Name() string { return p.cfg.Model }

// Generate sends the prompt plus page images through the messages API and
// returns the first text block with token usage.
func (p *anthropicProvider) Generate(ctx context.Context, prompt string, imagePaths []string) (string, Usage, error) {
	start := time.Now()

	content := []map[string]any{
		{"type": "text", "text": prompt},
	}
	for _, path := range imagePaths {
		b64, err := readImageBase64(path)
		if err != nil {
			return "", Usage{}, err
		}
		content = append(content, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": "image/png",
				"data":       b64,
			},
		})
	}

	body := map[string]any{
		"model":       p.cfg.Model,
		"max_tokens":  p.cfg.MaxTokens,
		"temperature": p.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	raw, err := postJSON(ctx, p.http, endpoint, body, map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": anthropicAPIVersion,
	}, p.log)
	if err != nil {
		return "", Usage{}, err
	}

	var mr struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &mr); err != nil {
		return "", Usage{}, fmt.Errorf("decode anthropic response: %w", err)
	}

	var text string
	for _, block := range mr.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", Usage{}, fmt.Errorf("no text block in anthropic response")
	}

	p.log.Debug("llm.anthropic.generate_ok",
		"model", p.cfg.Model, "pages", len(imagePaths),
		"input_tokens", mr.Usage.InputTokens,
		"output_tokens", mr.Usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds())

	usage := Usage{PromptTokens: mr.Usage.InputTokens, CompletionTokens: mr.Usage.OutputTokens}
	return strings.TrimSpace(text), usage, nil
}
