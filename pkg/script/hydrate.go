package script

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultToolPrefix is the invocation name of the provider CLI.
const DefaultToolPrefix = "gcloud"

// Hydrator substitutes user inputs into commands before dispatch.
type Hydrator struct {
	Params     []Parameter
	Inputs     map[string]string
	ToolPrefix string // defaults to DefaultToolPrefix
}

// NewHydrator builds a hydrator for the given parameters and inputs.
func NewHydrator(params []Parameter, inputs map[string]string) *Hydrator {
	return &Hydrator{Params: params, Inputs: inputs, ToolPrefix: DefaultToolPrefix}
}

// IsToolInvocation reports whether command invokes the provider CLI.
func (h *Hydrator) IsToolInvocation(command string) bool {
	prefix := h.ToolPrefix
	if prefix == "" {
		prefix = DefaultToolPrefix
	}
	fields := strings.Fields(command)
	return len(fields) > 0 && fields[0] == prefix
}

// Hydrate rewrites a provider CLI invocation with the current inputs. Other
// commands are returned unchanged.
func (h *Hydrator) Hydrate(command string) string {
	if !h.IsToolInvocation(command) {
		return command
	}
	return h.Display(command)
}

// Display hydrates any command regardless of whether it invokes the provider
// CLI. Used for echo simulation and previews.
func (h *Hydrator) Display(command string) string {
	out := command

	// Longest names first so $VM never consumes part of $VM_NAME.
	vars := h.byOrigin(OriginPromptVariable)
	sort.SliceStable(vars, func(i, j int) bool { return len(vars[i].Name) > len(vars[j].Name) })
	for _, p := range vars {
		value := h.value(p)
		re := variableRef(p.Name)
		out = re.ReplaceAllStringFunc(out, func(string) string { return value })
	}
	return h.HydrateFlags(out)
}

// HydrateFlags rewrites the flag occurrences in text and leaves variable
// references for the shell to expand. Whole-script dispatch uses it together
// with ExportPrelude.
func (h *Hydrator) HydrateFlags(text string) string {
	out := text
	for _, p := range h.Params {
		flag := p.Name
		if p.Origin != OriginFlag {
			if p.FlagName == "" {
				continue
			}
			flag = p.FlagName
		}
		// Only flags already present are rewritten; none are appended.
		re := flagRef(flag)
		if re.MatchString(out) {
			out = re.ReplaceAllLiteralString(out, "--"+flag+"="+h.value(p))
		}
	}
	return out
}

func (h *Hydrator) byOrigin(origin Origin) []Parameter {
	var out []Parameter
	for _, p := range h.Params {
		if p.Origin == origin {
			out = append(out, p)
		}
	}
	return out
}

// value is the input for p, falling back to its default.
func (h *Hydrator) value(p Parameter) string {
	if v, ok := h.Inputs[p.Name]; ok {
		return v
	}
	if p.FlagName != "" {
		if v, ok := h.Inputs[p.FlagName]; ok {
			return v
		}
	}
	return p.DefaultValue
}

// variableRef matches ${NAME} and $NAME not followed by another identifier
// character.
func variableRef(name string) *regexp.Regexp {
	q := regexp.QuoteMeta(name)
	return regexp.MustCompile(`\$\{` + q + `\}|\$` + q + `\b`)
}

// flagRef matches --name=value and --name value.
func flagRef(name string) *regexp.Regexp {
	return regexp.MustCompile(`--` + regexp.QuoteMeta(name) + `(?:=|[ \t]+)` + flagValue)
}

// ExportPrelude renders vars as shell export statements, sorted by name, with
// single quotes escaped.
func ExportPrelude(vars map[string]string) string {
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, k := range names {
		v := strings.ReplaceAll(vars[k], "'", `'\''`)
		b.WriteString("export " + k + "='" + v + "'\n")
	}
	return b.String()
}
