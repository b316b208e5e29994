package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// RemoteExecutor dispatches commands to a stateless HTTP command runner that
// accepts POST {"command": ...} and answers {stdout, stderr, returncode}.
type RemoteExecutor struct {
	URL        string
	HTTPClient *http.Client
}

// NewRemoteExecutor creates a runner client. A zero timeout means the
// runner's own limits apply.
func NewRemoteExecutor(url string, timeout time.Duration) (*RemoteExecutor, error) {
	if url == "" {
		return nil, errors.New("runner URL is required")
	}
	return &RemoteExecutor{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}, nil
}

type runnerRequest struct {
	Command string `json:"command"`
}

type runnerResponse struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode *int   `json:"returncode"`
}

func (r *RemoteExecutor) post(ctx context.Context, command string) (*http.Response, error) {
	body, err := json.Marshal(runnerRequest{Command: command})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner request failed: %w", err)
	}
	return resp, nil
}

// Execute sends one command to the runner. A non-2xx status or a non-zero
// returncode yields the populated result together with a *RunnerError.
func (r *RemoteExecutor) Execute(ctx context.Context, command string) (*CommandResult, error) {
	start := time.Now()
	resp, err := r.post(ctx, command)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read runner response: %w", err)
	}

	res := decodeRunnerResponse(data)
	res.Duration = time.Since(start)

	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if ok && res.ExitCode == 0 {
		return res, nil
	}
	if !ok && res.ExitCode == 0 {
		res.ExitCode = -1
	}
	return res, &RunnerError{
		ExitCode:   res.ExitCode,
		StatusCode: resp.StatusCode,
		Detail:     failureDetail(string(res.Stderr), string(res.Stdout)),
	}
}

// decodeRunnerResponse tolerates non-JSON bodies by treating them as stdout.
func decodeRunnerResponse(data []byte) *CommandResult {
	var rr runnerResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return &CommandResult{Stdout: bytes.TrimSpace(data)}
	}
	res := &CommandResult{
		Stdout: []byte(strings.TrimRight(rr.Stdout, "\n")),
		Stderr: []byte(strings.TrimRight(rr.Stderr, "\n")),
	}
	if rr.ReturnCode != nil {
		res.ExitCode = *rr.ReturnCode
	}
	return res
}

// Stream sends the whole script as a single command. JSON responses are
// split into lines once complete; any other body is delivered line by line
// as it arrives.
func (r *RemoteExecutor) Stream(ctx context.Context, script string, out func(Line)) (*CommandResult, error) {
	start := time.Now()
	resp, err := r.post(ctx, script)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read runner response: %w", err)
		}
		res := decodeRunnerResponse(data)
		emitLines(string(res.Stdout), false, out)
		emitLines(string(res.Stderr), true, out)
		if !ok && res.ExitCode == 0 {
			res.ExitCode = -1
		}
		result := &CommandResult{ExitCode: res.ExitCode, Duration: time.Since(start)}
		if result.ExitCode != 0 {
			return result, &RunnerError{
				ExitCode:   result.ExitCode,
				StatusCode: resp.StatusCode,
				Detail:     failureDetail(string(res.Stderr), string(res.Stdout)),
			}
		}
		return result, nil
	}

	var tail strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !ok {
			tail.WriteString(line + "\n")
		}
		out(Line{Text: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read runner stream: %w", err)
	}

	result := &CommandResult{Duration: time.Since(start)}
	if !ok {
		result.ExitCode = -1
		return result, &RunnerError{
			ExitCode:   -1,
			StatusCode: resp.StatusCode,
			Detail:     failureDetail("", strings.TrimSpace(tail.String())),
		}
	}
	return result, nil
}

func emitLines(text string, isStderr bool, out func(Line)) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		out(Line{Text: line, Stderr: isStderr})
	}
}
