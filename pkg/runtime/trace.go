package runtime

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ormasoftchile/gcloud-commander/pkg/stream"
)

// TraceEvent is one line of a run trace.
type TraceEvent struct {
	Timestamp time.Time    `json:"ts"`
	RunID     string       `json:"run_id"`
	Event     stream.Event `json:"event"`
}

// TraceWriter appends every event of a run to a JSONL file, including events
// the consumer never received.
type TraceWriter struct {
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
	runID  string
}

// NewTraceWriter creates <dir>/<runID>.jsonl.
func NewTraceWriter(dir, runID string) (*TraceWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, runID+".jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &TraceWriter{file: f, writer: w, enc: json.NewEncoder(w), runID: runID}, nil
}

// Write appends ev and flushes at step boundaries and terminal events.
func (tw *TraceWriter) Write(ev stream.Event) error {
	if err := tw.enc.Encode(TraceEvent{Timestamp: time.Now().UTC(), RunID: tw.runID, Event: ev}); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if ev.Terminal() {
		if err := tw.file.Sync(); err != nil {
			return fmt.Errorf("sync trace: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	if err := tw.writer.Flush(); err != nil {
		return err
	}
	return tw.file.Close()
}
