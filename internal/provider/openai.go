// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/aiverse/hybridstack/internal/config"
)

// OpenAIClient executes requests against OpenAI or any OpenAI-compatible
// chat-completions endpoint.
type OpenAIClient struct {
	name     string
	baseURL  string
	apiKey   string
	model    string
	local    bool
	embedded bool
	client   *http.Client
}

// NewOpenAIClient creates a client from provider configuration.
func NewOpenAIClient(cfg config.ProviderConfig) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		name:     cfg.Name,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   cfg.APIKey(),
		model:    cfg.DefaultModel,
		local:    cfg.IsLocal(),
		embedded: cfg.Embeddings,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Name implements Client.
func (c *OpenAIClient) Name() string { return c.name }

// Local implements Client.
func (c *OpenAIClient) Local() bool { return c.local }

// DefaultModel implements Client.
func (c *OpenAIClient) DefaultModel() string { return c.model }

// Call implements Client against the /chat/completions endpoint.
func (c *OpenAIClient) Call(ctx context.Context, req CallRequest) (*CallResult, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", model)
	body, _ = sjson.SetBytes(body, "temperature", req.Temperature)
	if req.MaxTokens > 0 {
		body, _ = sjson.SetBytes(body, "max_tokens", req.MaxTokens)
	}
	idx := 0
	if req.SystemPrompt != "" {
		body, _ = sjson.SetBytes(body, "messages.0.role", "system")
		body, _ = sjson.SetBytes(body, "messages.0.content", req.SystemPrompt)
		idx = 1
	}
	body, _ = sjson.SetBytes(body, "messages."+itoa(idx)+".role", "user")
	body, _ = sjson.SetBytes(body, "messages."+itoa(idx)+".content", req.UserPrompt)

	respBody, err := c.post(ctx, c.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}

	text := gjson.GetBytes(respBody, "choices.0.message.content").String()
	return &CallResult{
		Text:         text,
		Model:        gjson.GetBytes(respBody, "model").String(),
		InputTokens:  int(gjson.GetBytes(respBody, "usage.prompt_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(respBody, "usage.completion_tokens").Int()),
	}, nil
}

// Embed implements Embedder against the /embeddings endpoint.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", "text-embedding-3-small")
	body, _ = sjson.SetBytes(body, "input", text)

	respBody, err := c.post(ctx, c.baseURL+"/embeddings", body)
	if err != nil {
		return nil, err
	}

	raw := gjson.GetBytes(respBody, "data.0.embedding").Array()
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v.Float())
	}
	return vec, nil
}

// HealthProbe implements Client by listing models, the cheapest authenticated call.
func (c *OpenAIClient) HealthProbe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	c.applyHeaders(httpReq)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Message: string(b)}
	}
	return nil
}

func (c *OpenAIClient) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.applyHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Debugf("provider %s error status %d: %s", c.name, resp.StatusCode, truncate(string(respBody), 200))
		return nil, &StatusError{Code: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}

func (c *OpenAIClient) applyHeaders(r *http.Request) {
	r.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	r.Header.Set("User-Agent", "hybridstack")
}
