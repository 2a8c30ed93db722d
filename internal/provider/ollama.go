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

// OllamaClient executes requests against a locally-hosted Ollama daemon.
// Local execution has zero marginal cost, so the ledger never meters it.
type OllamaClient struct {
	name    string
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates a client from provider configuration.
func NewOllamaClient(cfg config.ProviderConfig) *OllamaClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		name:    cfg.Name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   cfg.DefaultModel,
		// Local models on modest hardware can be slow; allow more headroom
		// than the cloud clients.
		client: &http.Client{Timeout: 300 * time.Second},
	}
}

// Name implements Client.
func (c *OllamaClient) Name() string { return c.name }

// Local implements Client.
func (c *OllamaClient) Local() bool { return true }

// DefaultModel implements Client.
func (c *OllamaClient) DefaultModel() string { return c.model }

// Call implements Client against the /api/chat endpoint (non-streaming).
func (c *OllamaClient) Call(ctx context.Context, req CallRequest) (*CallResult, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := []byte(`{"stream":false}`)
	body, _ = sjson.SetBytes(body, "model", model)
	body, _ = sjson.SetBytes(body, "options.temperature", req.Temperature)
	if req.MaxTokens > 0 {
		body, _ = sjson.SetBytes(body, "options.num_predict", req.MaxTokens)
	}
	idx := 0
	if req.SystemPrompt != "" {
		body, _ = sjson.SetBytes(body, "messages.0.role", "system")
		body, _ = sjson.SetBytes(body, "messages.0.content", req.SystemPrompt)
		idx = 1
	}
	body, _ = sjson.SetBytes(body, "messages."+itoa(idx)+".role", "user")
	body, _ = sjson.SetBytes(body, "messages."+itoa(idx)+".content", req.UserPrompt)

	respBody, err := c.post(ctx, c.baseURL+"/api/chat", body)
	if err != nil {
		return nil, err
	}

	return &CallResult{
		Text:         gjson.GetBytes(respBody, "message.content").String(),
		Model:        gjson.GetBytes(respBody, "model").String(),
		InputTokens:  int(gjson.GetBytes(respBody, "prompt_eval_count").Int()),
		OutputTokens: int(gjson.GetBytes(respBody, "eval_count").Int()),
	}, nil
}

// Embed implements Embedder against the /api/embeddings endpoint.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", c.model)
	body, _ = sjson.SetBytes(body, "prompt", text)

	respBody, err := c.post(ctx, c.baseURL+"/api/embeddings", body)
	if err != nil {
		return nil, err
	}

	raw := gjson.GetBytes(respBody, "embedding").Array()
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v.Float())
	}
	return vec, nil
}

// HealthProbe implements Client by listing installed models.
func (c *OllamaClient) HealthProbe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
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

func (c *OllamaClient) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
