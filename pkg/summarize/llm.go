// Package summarize produces short natural-language summaries of step logs
// through an LLM chat-completions endpoint.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// LLMClient answers a summary request made of a system prompt and the log to
// summarize.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// ModelName returns the deployment/model name, logged with each summary.
	ModelName() string
}

// Summary requests are short and deterministic.
const (
	DefaultAPIVersion = "2024-02-01"
	summaryMaxTokens  = 300
	summaryTemp       = 0.2
	maxErrorBody      = 512
)

// ErrFiltered is returned when the endpoint withholds a summary because of
// its content filter.
var ErrFiltered = errors.New("summary withheld by content filter")

// AzureOpenAIConfig holds configuration for creating an Azure OpenAI client.
type AzureOpenAIConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	Timeout    time.Duration
}

// AzureOpenAIClient summarizes through an Azure OpenAI chat deployment.
type AzureOpenAIClient struct {
	Endpoint   string // e.g. https://<resource>.openai.azure.com
	APIKey     string
	Deployment string
	APIVersion string
	HTTPClient *http.Client
}

// NewAzureOpenAIClient validates cfg and returns a client for it.
func NewAzureOpenAIClient(cfg AzureOpenAIConfig) (*AzureOpenAIClient, error) {
	switch {
	case cfg.Endpoint == "":
		return nil, fmt.Errorf("summarizer endpoint is required")
	case cfg.APIKey == "":
		return nil, fmt.Errorf("summarizer API key is required")
	case cfg.Deployment == "":
		return nil, fmt.Errorf("summarizer deployment is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &AzureOpenAIClient{
		Endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		APIKey:     cfg.APIKey,
		Deployment: cfg.Deployment,
		APIVersion: cfg.APIVersion,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// NewAzureOpenAIClientFromEnv reads AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY,
// AZURE_OPENAI_DEPLOYMENT and the optional AZURE_OPENAI_API_VERSION.
func NewAzureOpenAIClientFromEnv() (*AzureOpenAIClient, error) {
	return NewAzureOpenAIClient(AzureOpenAIConfig{
		Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
		Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
		APIVersion: os.Getenv("AZURE_OPENAI_API_VERSION"),
	})
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type summaryRequest struct {
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	N           int       `json:"n"`
}

type summaryReply struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ModelName returns the deployment name.
func (c *AzureOpenAIClient) ModelName() string {
	return c.Deployment
}

func (c *AzureOpenAIClient) completionsURL() string {
	q := url.Values{"api-version": {c.APIVersion}}
	return c.Endpoint + "/openai/deployments/" + url.PathEscape(c.Deployment) + "/chat/completions?" + q.Encode()
}

// Complete asks the deployment for a single low-temperature summary of
// userPrompt under systemPrompt.
func (c *AzureOpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload, err := json.Marshal(summaryRequest{
		Messages:    []message{{Role: "system", Content: systemPrompt}, {Role: "user", Content: userPrompt}},
		Temperature: summaryTemp,
		MaxTokens:   summaryMaxTokens,
		N:           1,
	})
	if err != nil {
		return "", fmt.Errorf("encode summary request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("summary request: %w", err)
	}
	defer resp.Body.Close()
	return readSummary(resp)
}

func readSummary(resp *http.Response) (string, error) {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("summary endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var reply summaryReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode summary reply: %w", err)
	}
	if reply.Error != nil {
		return "", fmt.Errorf("summary endpoint error [%s]: %s", reply.Error.Code, reply.Error.Message)
	}
	if len(reply.Choices) == 0 {
		return "", fmt.Errorf("summary reply has no choices")
	}
	choice := reply.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", ErrFiltered
	}
	return strings.TrimSpace(choice.Message.Content), nil
}
