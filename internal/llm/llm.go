// Package llm talks to the text-analysis services: a local Ollama server,
// the OpenAI chat API, or the Anthropic messages API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/logger"
)

// ErrNotConfigured is returned by Generate when the provider has no credentials.
var ErrNotConfigured = errors.New("llm provider not configured")

const requestTimeout = 120 * time.Second

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// postJSON sends body to url and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	return &OllamaProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	return false
}

// Generate sends a prompt to Ollama and returns the response.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"num_predict": maxTokens,
			"temperature": 0.2,
		},
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/api/chat", nil, body, &result); err != nil {
		return "", fmt.Errorf("ollama API: %w", err)
	}
	return result.Message.Content, nil
}

// OpenAIProvider is an OpenAI API provider.
type OpenAIProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(model, apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		Model:   model,
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Generate sends a prompt to OpenAI and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("openai: %w", ErrNotConfigured)
	}

	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":      maxTokens,
		"temperature":     0.2,
		"response_format": map[string]string{"type": "json_object"},
	}
	header := http.Header{"Authorization": []string{"Bearer " + o.APIKey}}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/chat/completions", header, body, &result); err != nil {
		return "", fmt.Errorf("openai API: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("no choices in OpenAI response")
	}
	return result.Choices[0].Message.Content, nil
}

const (
	anthropicAPIURL  = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider calls the Anthropic messages API.
type AnthropicProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(model, apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		Model:   model,
		APIKey:  apiKey,
		BaseURL: anthropicAPIURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool {
	return a.APIKey != ""
}

// Generate sends a single user message and returns the text blocks of the reply.
func (a *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if a.APIKey == "" {
		return "", fmt.Errorf("anthropic: %w", ErrNotConfigured)
	}

	body := map[string]any{
		"model":       a.Model,
		"max_tokens":  maxTokens,
		"temperature": 0.2,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	header := http.Header{
		"X-Api-Key":         []string{a.APIKey},
		"Anthropic-Version": []string{anthropicVersion},
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := postJSON(ctx, a.client, a.BaseURL+"/messages", header, body, &result); err != nil {
		return "", fmt.Errorf("anthropic API: %w", err)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty anthropic response (stop reason %q)", result.StopReason)
	}
	return text.String(), nil
}

// CreateProvider picks the configured provider, falling back to the hosted
// APIs that have a key set. It returns nil when nothing is available.
func CreateProvider(cfg config.Analysis, log logger.Logger) Provider {
	if log == nil {
		log = logger.NewNop()
	}
	openai := NewOpenAIProvider(cfg.OpenAIModel, os.Getenv(cfg.APIKeyEnv))
	anthropic := NewAnthropicProvider(cfg.AnthropicModel, os.Getenv(cfg.AnthropicKeyEnv))

	var candidates []Provider
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		candidates = []Provider{anthropic, openai}
	case "openai":
		candidates = []Provider{openai, anthropic}
	default:
		candidates = []Provider{NewOllamaProvider(cfg.Model, cfg.OllamaURL), openai, anthropic}
	}

	for i, p := range candidates {
		if p.IsConfigured() {
			if i > 0 {
				log.Warn("Preferred analysis provider unavailable, using fallback",
					logger.String("preferred", cfg.Provider), logger.String("using", providerName(p)))
			} else {
				log.Info("Using analysis provider", logger.String("provider", providerName(p)))
			}
			return p
		}
	}
	log.Warn("No analysis provider available; check Ollama is running or set an API key",
		logger.String("openai_key_env", cfg.APIKeyEnv),
		logger.String("anthropic_key_env", cfg.AnthropicKeyEnv))
	return nil
}

func providerName(p Provider) string {
	switch v := p.(type) {
	case *OllamaProvider:
		return "ollama:" + v.Model
	case *OpenAIProvider:
		return "openai:" + v.Model
	case *AnthropicProvider:
		return "anthropic:" + v.Model
	}
	return fmt.Sprintf("%T", p)
}
