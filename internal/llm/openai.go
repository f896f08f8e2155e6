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

type openAIProvider struct {
	cfg  ProviderConfig
	http *http.Client
	log  *slog.Logger
}

func newOpenAIProvider(cfg ProviderConfig, hc *http.Client, logger *slog.Logger) *openAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &openAIProvider{cfg: cfg, http: hc, log: logger}
}

func (p *openAIProvider) Name() string { return p.cfg.Model }

// Generate sends the prompt plus page images through chat/completions and
// returns the message text with token usage.
func (p *openAIProvider) Generate(ctx context.Context, prompt string, imagePaths []string) (string, Usage, error) {
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
			"type": "image_url",
			"image_url": map[string]any{
				"url":    "data:image/png;base64," + b64,
				"detail": "high",
			},
		})
	}

	body := map[string]any{
		"model":           p.cfg.Model,
		"temperature":     p.cfg.Temperature,
		"max_tokens":      p.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := postJSON(ctx, p.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	}, p.log)
	if err != nil {
		return "", Usage{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", Usage{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in openai response")
	}

	p.log.Debug("llm.openai.generate_ok",
		"model", p.cfg.Model, "pages", len(imagePaths),
		"prompt_tokens", cc.Usage.PromptTokens,
		"completion_tokens", cc.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds())

	usage := Usage{PromptTokens: cc.Usage.PromptTokens, CompletionTokens: cc.Usage.CompletionTokens}
	return strings.TrimSpace(cc.Choices[0].Message.Content), usage, nil
}
