package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/gcloud-commander/pkg/diagram"
	"github.com/ormasoftchile/gcloud-commander/pkg/script"
	"github.com/ormasoftchile/gcloud-commander/pkg/steps"
	"github.com/ormasoftchile/gcloud-commander/pkg/stream"
)

// RunReport is the result of the commander/run tool.
type RunReport struct {
	Status string       `json:"status"` // "completed" or "failed"
	Steps  []steps.Step `json:"steps"`
	Error  string       `json:"error,omitempty"`
}

// HandleParameters implements the commander/parameters tool.
func (h *Handlers) HandleParameters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, content, err := h.content(req.GetArguments())
	if err != nil {
		return errorResult(err.Error()), nil
	}
	params := script.ExtractParameters(content)
	if params == nil {
		params = []script.Parameter{}
	}
	return jsonResult(params, false), nil
}

// HandleRun implements the commander/run tool.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	_, content, err := h.content(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	vars := make(map[string]string)
	if raw, ok := args["vars"].(map[string]any); ok {
		for k, v := range raw {
			vars[k] = fmt.Sprint(v)
		}
	}

	report := RunReport{Status: "completed", Steps: []steps.Step{}}
	for ev := range h.Engine.Run(ctx, content, vars) {
		switch ev.Type {
		case stream.TypeStep:
			if s, ok := ev.Step(); ok {
				report.Steps = append(report.Steps, s)
			}
		case stream.TypeError:
			report.Status = "failed"
			report.Error = ev.Message()
		}
	}
	return jsonResult(report, report.Status == "failed"), nil
}

// HandleFlow implements the commander/flow tool.
func (h *Handlers) HandleFlow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	name, content, err := h.content(args)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	format, _ := args["format"].(string)
	if format == "" {
		format = string(diagram.FormatMermaid)
	}
	out, err := diagram.Generate(diagram.Parse(name, content), diagram.Format(format))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(out), nil
}

// HandleScripts implements the commander/scripts tool.
func (h *Handlers) HandleScripts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.Scripts == nil {
		return errorResult("no script store configured"), nil
	}
	list, err := h.Scripts.List()
	if err != nil {
		return errorResult(fmt.Sprintf("list scripts: %s", err)), nil
	}
	return jsonResult(list, false), nil
}

// content resolves the script a tool call refers to: inline content wins
// over a stored key.
func (h *Handlers) content(args map[string]any) (name, content string, err error) {
	content, _ = args["content"].(string)
	if content != "" {
		name, _ = args["name"].(string)
		return name, content, nil
	}
	key, _ := args["key"].(string)
	if key == "" {
		return "", "", fmt.Errorf("content or key argument is required")
	}
	if h.Scripts == nil {
		return "", "", fmt.Errorf("no script store configured for key %q", key)
	}
	sc, err := h.Scripts.Get(key)
	if err != nil {
		return "", "", err
	}
	return sc.Name, sc.Content, nil
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
