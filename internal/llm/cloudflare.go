package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const cloudflareAPIBase = "https://api.cloudflare.com/client/v4"

// cfHTTPClient is shared by text and image requests. Image generation can
// take a while, so the transport-level timeout is generous; per-attempt
// bounds come from the request context.
var cfHTTPClient = &http.Client{Timeout: 2 * time.Minute}

// CloudflareProvider implements Provider for Cloudflare Workers AI.
type CloudflareProvider struct {
	accountID   string
	apiToken    string
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
}

// NewCloudflare creates a Workers AI text provider.
func NewCloudflare(accountID, apiToken, model string, maxTokens int, temperature float64) *CloudflareProvider {
	if model == "" {
		model = "@cf/meta/llama-3.1-8b-instruct"
	}
	return &CloudflareProvider{
		accountID:   accountID,
		apiToken:    apiToken,
		model:       model,
		baseURL:     cloudflareAPIBase,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (p *CloudflareProvider) Name() string { return "cloudflare" }

func (p *CloudflareProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = p.temperature
	}

	body := map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}
	if temp > 0 {
		body["temperature"] = temp
	}

	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s", p.baseURL, p.accountID, p.model)
	respBody, err := p.post(ctx, url, body)
	if err != nil {
		return nil, err
	}

	// Workers AI wraps the reply at result.response.
	var cfResp struct {
		Result struct {
			Response string `json:"response"`
		} `json:"result"`
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(respBody, &cfResp); err != nil {
		return nil, &ProviderError{Provider: "cloudflare", Message: fmt.Sprintf("parse response: %v", err)}
	}
	if !cfResp.Success {
		return nil, &ProviderError{Provider: "cloudflare", Message: "api reported failure"}
	}

	return &Response{
		Text:  strings.TrimSpace(cfResp.Result.Response),
		Model: p.model,
	}, nil
}

func (p *CloudflareProvider) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiToken)

	resp, err := cfHTTPClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "cloudflare", Message: fmt.Sprintf("http request: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "cloudflare", Message: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider:   "cloudflare",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
		}
	}
	return respBody, nil
}

// ImageClient generates images through Workers AI. Stable Diffusion
// returns the image as base64 at result.image.
type ImageClient struct {
	provider *CloudflareProvider
	model    string
}

// NewImageClient creates a Workers AI image generation client.
func NewImageClient(accountID, apiToken, model string) *ImageClient {
	if model == "" {
		model = "@cf/stabilityai/stable-diffusion-xl-base-1.0"
	}
	return &ImageClient{
		provider: &CloudflareProvider{
			accountID: accountID,
			apiToken:  apiToken,
			baseURL:   cloudflareAPIBase,
		},
		model: model,
	}
}

// Generate renders an image for the prompt and returns the decoded bytes.
func (ic *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s",
		ic.provider.baseURL, ic.provider.accountID, ic.model)

	respBody, err := ic.provider.post(ctx, url, map[string]any{"prompt": prompt})
	if err != nil {
		return nil, err
	}

	var imgResp struct {
		Result struct {
			Image string `json:"image"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &imgResp); err != nil {
		return nil, &ProviderError{Provider: "cloudflare", Message: fmt.Sprintf("parse image response: %v", err)}
	}
	if imgResp.Result.Image == "" {
		return nil, &ProviderError{Provider: "cloudflare", Message: "empty image result"}
	}

	data, err := base64.StdEncoding.DecodeString(imgResp.Result.Image)
	if err != nil {
		return nil, &ProviderError{Provider: "cloudflare", Message: fmt.Sprintf("decode image: %v", err)}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
