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

const anthropicVersion = "2023-06-01"

// AnthropicClient executes requests against the Anthropic messages endpoint.
type AnthropicClient struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewAnthropicClient creates a client from provider configuration.
func NewAnthropicClient(cfg config.ProviderConfig) *AnthropicClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicClient{
		name:    cfg.Name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey(),
		model:   cfg.DefaultModel,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Name implements Client.
func (c *AnthropicClient) Name() string { return c.name }

// Local implements Client.
func (c *AnthropicClient) Local() bool { return false }

// DefaultModel implements Client.
func (c *AnthropicClient) DefaultModel() string { return c.model }

// Call implements Client against the /messages endpoint.
func (c *AnthropicClient) Call(ctx context.Context, req CallRequest) (*CallResult, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		// The messages API requires max_tokens.
		maxTokens = 4096
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", model)
	body, _ = sjson.SetBytes(body, "max_tokens", maxTokens)
	body, _ = sjson.SetBytes(body, "temperature", req.Temperature)
	if req.SystemPrompt != "" {
		body, _ = sjson.SetBytes(body, "system", req.SystemPrompt)
	}
	body, _ = sjson.SetBytes(body, "messages.0.role", "user")
	body, _ = sjson.SetBytes(body, "messages.0.content", req.UserPrompt)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
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

	var text strings.Builder
	for _, block := range gjson.GetBytes(respBody, "content").Array() {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
	}
	return &CallResult{
		Text:         text.String(),
		Model:        gjson.GetBytes(respBody, "model").String(),
		InputTokens:  int(gjson.GetBytes(respBody, "usage.input_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(respBody, "usage.output_tokens").Int()),
	}, nil
}

// HealthProbe implements Client with a one-token message request.
// Anthropic has no unauthenticated models listing, so the probe is a minimal
// real completion.
func (c *AnthropicClient) HealthProbe(ctx context.Context) error {
	_, err := c.Call(ctx, CallRequest{UserPrompt: "ping", MaxTokens: 1})
	return err
}

func (c *AnthropicClient) applyHeaders(r *http.Request) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("anthropic-version", anthropicVersion)
	if c.apiKey != "" {
		r.Header.Set("x-api-key", c.apiKey)
	}
	r.Header.Set("User-Agent", "hybridstack")
}
