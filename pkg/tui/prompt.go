package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/gcloud-commander/pkg/script"
)

// ErrPromptCancelled is returned when the user interrupts input prompts.
var ErrPromptCancelled = errors.New("input cancelled")

// LineReader reads one line per prompt. *readline.Instance implements it.
type LineReader interface {
	SetPrompt(prompt string)
	Readline() (string, error)
}

// NewLineReader returns a readline instance for interactive prompts.
func NewLineReader() (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	return rl, nil
}

// PromptInputs asks for every parameter that has no value in preset yet and
// returns the merged inputs. An empty answer keeps the default. End of input
// accepts the remaining defaults; an interrupt cancels.
func PromptInputs(r LineReader, params []script.Parameter, preset map[string]string) (map[string]string, error) {
	inputs := make(map[string]string, len(params))
	for k, v := range preset {
		inputs[k] = v
	}
	eof := false
	for _, p := range params {
		if _, ok := inputs[p.Name]; ok {
			continue
		}
		if eof {
			inputs[p.Name] = p.DefaultValue
			continue
		}
		r.SetPrompt(promptFor(p))
		line, err := r.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			return nil, ErrPromptCancelled
		case errors.Is(err, io.EOF):
			eof = true
			inputs[p.Name] = p.DefaultValue
			continue
		case err != nil:
			return nil, fmt.Errorf("read %s: %w", p.Name, err)
		}
		if line = strings.TrimSpace(line); line == "" {
			line = p.DefaultValue
		}
		inputs[p.Name] = line
	}
	return inputs, nil
}

func promptFor(p script.Parameter) string {
	if p.DefaultValue == "" {
		return p.Label + ": "
	}
	return fmt.Sprintf("%s [%s]: ", p.Label, p.DefaultValue)
}
