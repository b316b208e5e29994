package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/ormasoftchile/gcloud-commander/pkg/script"
	"github.com/ormasoftchile/gcloud-commander/pkg/stream"
)

// SummaryFunc summarizes one step log.
type SummaryFunc func(ctx context.Context, log string) (string, error)

// Client talks to a running commander server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for the server at baseURL. Requests have no
// overall timeout since executions stream for as long as the script runs.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: &http.Client{}}
}

type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var e apiError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		if e.Detail != "" {
			return nil, fmt.Errorf("POST %s: %d %s: %s", path, resp.StatusCode, e.Error, e.Detail)
		}
		return nil, fmt.Errorf("POST %s: %d %s", path, resp.StatusCode, e.Error)
	}
	return resp, nil
}

// Execute starts a run on the server. The returned sequence yields its step
// events and always ends with a terminal event: a broken or truncated stream
// is reported as an Error event. Range over it exactly once so the response
// body is released.
func (c *Client) Execute(ctx context.Context, content string, inputs map[string]string) (iter.Seq[stream.Event], error) {
	resp, err := c.post(ctx, "/api/execute", map[string]any{
		"scriptContent": content,
		"inputValues":   inputs,
	})
	if err != nil {
		return nil, err
	}
	return func(yield func(stream.Event) bool) {
		defer resp.Body.Close()
		dec := stream.NewDecoder(resp.Body)
		for {
			ev, err := dec.Decode()
			if errors.Is(err, io.EOF) {
				yield(stream.ErrorEvent("Stream ended before the run finished."))
				return
			}
			if err != nil {
				yield(stream.ErrorEvent("Stream interrupted: " + err.Error()))
				return
			}
			if !yield(ev) || ev.Terminal() {
				return
			}
		}
	}, nil
}

// Summarize asks the server to summarize a step log.
func (c *Client) Summarize(ctx context.Context, log string) (string, error) {
	resp, err := c.post(ctx, "/api/summarize", map[string]string{"log": log})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode summary: %w", err)
	}
	return out.Summary, nil
}

// Parameters asks the server for the parameters of content.
func (c *Client) Parameters(ctx context.Context, content string) ([]script.Parameter, error) {
	resp, err := c.post(ctx, "/api/parameters", map[string]string{"scriptContent": content})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var params []script.Parameter
	if err := json.NewDecoder(resp.Body).Decode(&params); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return params, nil
}
