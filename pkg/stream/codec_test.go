package stream

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ormasoftchile/gcloud-commander/pkg/steps"
)

func TestEncoderWireFormat(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Encode(StepEvent(steps.Step{ID: 0, Title: "Create", Log: "ok"}))
	enc.Encode(ErrorEvent(`Execution failed at step: "Create"`))

	want := `{"type":"step","data":{"id":0,"title":"Create","log":"ok"}}` + "\n" +
		`{"type":"error","data":{"message":"Execution failed at step: \"Create\""}}` + "\n"
	if buf.String() != want {
		t.Errorf("wire =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestEncoderEndHasNoData(t *testing.T) {
	var buf bytes.Buffer
	NewEncoder(&buf).Encode(EndEvent())
	if buf.String() != `{"type":"end"}`+"\n" {
		t.Errorf("wire = %q", buf.String())
	}
}

func TestEncoderNothingAfterTerminal(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if !enc.Encode(EndEvent()) {
		t.Fatal("end must be written")
	}
	if enc.Encode(StepEvent(steps.Step{Title: "late"})) {
		t.Error("event after terminal must be discarded")
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("wire = %q", buf.String())
	}
	if !enc.Closed() || enc.Err() != nil {
		t.Errorf("closed=%v err=%v", enc.Closed(), enc.Err())
	}
}

type brokenWriter struct{ writes int }

func (b *brokenWriter) Write(p []byte) (int, error) {
	b.writes++
	return 0, errors.New("connection reset")
}

func TestEncoderSwallowsWriteErrors(t *testing.T) {
	w := &brokenWriter{}
	enc := NewEncoder(w)
	if enc.Encode(StepEvent(steps.Step{Title: "a"})) {
		t.Error("failed write must report false")
	}
	enc.Encode(StepEvent(steps.Step{Title: "b"}))
	enc.Encode(EndEvent())
	if w.writes != 1 {
		t.Errorf("writes after failure = %d, want 1", w.writes)
	}
	if enc.Err() == nil {
		t.Error("expected recorded error")
	}
}

func TestEncoderFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	NewEncoder(rec).Encode(EndEvent())
	if !rec.Flushed {
		t.Error("expected flush")
	}
}

func TestDecoderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Encode(StepEvent(steps.Step{ID: 3, Title: "Deploy", Log: "line1\nline2"}))
	enc.Encode(ErrorEvent("boom"))
	buf.WriteString("\n\n")

	dec := NewDecoder(&buf)
	ev, err := dec.Decode()
	if err != nil {
		t.Fatal(err)
	}
	step, ok := ev.Step()
	if !ok || step.ID != 3 || step.Log != "line1\nline2" {
		t.Errorf("step = %+v ok=%v", step, ok)
	}
	ev, err = dec.Decode()
	if err != nil || ev.Type != TypeError || ev.Message() != "boom" || !ev.Terminal() {
		t.Errorf("event = %+v err=%v", ev, err)
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestDecoderLargeStep(t *testing.T) {
	log := strings.Repeat("bucket-name-xyz\n", 80000)
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Encode(StepEvent(steps.Step{ID: 1, Title: "List buckets", Log: log}))
	enc.Encode(EndEvent())

	dec := NewDecoder(&buf)
	ev, err := dec.Decode()
	if err != nil {
		t.Fatal(err)
	}
	step, ok := ev.Step()
	if !ok || step.Log != log {
		t.Errorf("step log has %d bytes, want %d", len(step.Log), len(log))
	}
	ev, err = dec.Decode()
	if err != nil || ev.Type != TypeEnd {
		t.Errorf("event = %+v err=%v", ev, err)
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestDecoderTruncatedEvent(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"type":"step","data":{"id":0,`))
	_, err := dec.Decode()
	if err == nil || errors.Is(err, io.EOF) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestDecoderRejectsUnknownType(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"type":"progress"}` + "\n"))
	if _, err := dec.Decode(); err == nil {
		t.Error("expected error")
	}
}
