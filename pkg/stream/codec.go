package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/ormasoftchile/gcloud-commander/pkg/steps"
)

// ContentType is the media type of an event stream.
const ContentType = "application/x-ndjson"

// Encoder writes events as one JSON object per line. Once a terminal event is
// written, or a write fails because the consumer went away, further events
// are discarded. Safe for concurrent use.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closed  bool
	err     error
}

// NewEncoder returns an encoder writing to w. If w is an http.Flusher each
// event is flushed as soon as it is written.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Encode writes ev. It reports whether the event reached the writer.
func (e *Encoder) Encode(ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	data, err := json.Marshal(ev)
	if err != nil {
		e.fail(fmt.Errorf("marshal %s event: %w", ev.Type, err))
		return false
	}
	if _, err := fmt.Fprintf(e.w, "%s\n", data); err != nil {
		e.fail(err)
		return false
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	if ev.Terminal() {
		e.closed = true
	}
	return true
}

func (e *Encoder) fail(err error) {
	e.err = err
	e.closed = true
}

// Closed reports whether the encoder discards further events.
func (e *Encoder) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Err returns the write error that closed the encoder, if any.
func (e *Encoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Decoder reads events written by an Encoder. Event size is unbounded.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

type wireEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode returns the next event, or io.EOF when the stream is exhausted.
// Blank lines are skipped.
func (d *Decoder) Decode() (Event, error) {
	var w wireEvent
	if err := d.dec.Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return w.event()
}

func (w wireEvent) event() (Event, error) {
	switch w.Type {
	case TypeStep:
		var s steps.Step
		if err := json.Unmarshal(w.Data, &s); err != nil {
			return Event{}, fmt.Errorf("decode step event: %w", err)
		}
		return StepEvent(s), nil
	case TypeError:
		var d ErrorData
		if len(w.Data) > 0 {
			if err := json.Unmarshal(w.Data, &d); err != nil {
				return Event{}, fmt.Errorf("decode error event: %w", err)
			}
		}
		return Event{Type: TypeError, Data: d}, nil
	case TypeEnd:
		return EndEvent(), nil
	default:
		return Event{}, fmt.Errorf("unknown event type %q", w.Type)
	}
}
