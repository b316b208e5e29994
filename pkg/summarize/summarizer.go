package summarize

import (
	"context"
	"log/slog"
	"strings"
)

// Fallback texts shown in place of a summary.
const (
	EmptyLogSummary = "Log content was empty. No summary could be generated."
	FailedSummary   = "An error occurred while generating the summary for this step."
	DisabledSummary = "Summaries are disabled."
)

const systemPrompt = `You are an expert system administrator summarizing gcloud script execution logs.

Your goal is to provide a concise summary of the key events and outcomes from the provided script output.
Omit less important or irrelevant details and focus on the most important steps and results.
Answer in a few sentences of Markdown.`

// maxLogBytes bounds the log sent for summary. Longer logs keep their tail,
// where outcomes and errors are reported.
const maxLogBytes = 32 * 1024

// Summarizer turns a step log into a short summary. It never fails: every
// problem is reported through one of the fallback texts. Safe for concurrent
// use when its client is.
type Summarizer struct {
	Client LLMClient // nil disables summaries
	Logger *slog.Logger
}

// New returns a summarizer backed by client.
func New(client LLMClient, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{Client: client, Logger: logger}
}

// Summarize returns a summary of log, or a fallback text.
func (s *Summarizer) Summarize(ctx context.Context, log string) string {
	if strings.TrimSpace(log) == "" {
		return EmptyLogSummary
	}
	if s == nil || s.Client == nil {
		return DisabledSummary
	}
	out, err := s.Client.Complete(ctx, systemPrompt, "Script Output:\n"+logTail(log))
	if err != nil || strings.TrimSpace(out) == "" {
		s.logger().Warn("summary failed", "model", s.Client.ModelName(), "error", err)
		return FailedSummary
	}
	return out
}

func (s *Summarizer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func logTail(log string) string {
	if len(log) <= maxLogBytes {
		return log
	}
	tail := log[len(log)-maxLogBytes:]
	if i := strings.IndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	}
	return "[earlier output omitted]\n" + tail
}
