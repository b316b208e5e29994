// Package script implements the restricted shell-script conventions understood
// by the console: parameter discovery, command segmentation, step boundary
// recognition and input hydration.
package script

import (
	"regexp"
	"sort"
	"strings"
)

// Origin records where a parameter was declared in the script.
type Origin string

const (
	OriginPromptVariable Origin = "readp"
	OriginFlag           Origin = "flag"
)

// Parameter is a single user-fillable input discovered in a script.
type Parameter struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	DefaultValue string `json:"defaultValue"`
	IsFlag       bool   `json:"isFlag"`
	Origin       Origin `json:"from"`
	// FlagName is set when a prompt variable absorbed a flag of the same
	// logical name; occurrences of that flag are hydrated with its value.
	FlagName string `json:"flagName,omitempty"`
}

// flagValue is the value part of a flag occurrence.
const flagValue = `([^\s"'\\-][^\s"']*)`

var (
	// flagRe matches --name=value and --name value. A value never starts with
	// a dash or a continuation backslash, and never spans lines.
	flagRe = regexp.MustCompile(`--([a-zA-Z0-9_-]+)(?:=|[ \t]+)` + flagValue)

	// promptRe matches read -p "Label: " VARNAME.
	promptRe = regexp.MustCompile(`read -p "([^"]+): " ([A-Z_0-9]+)`)
)

// ExtractParameters scans script content for flag defaults and read -p
// prompts and returns them in first-seen order, flags first. A prompt whose
// variable name matches an existing flag (case-insensitive) takes over that
// entry's label and origin but keeps the flag's default.
func ExtractParameters(content string) []Parameter {
	if content == "" {
		return nil
	}

	var params []Parameter
	seen := make(map[string]bool)

	for _, m := range flagRe.FindAllStringSubmatch(content, -1) {
		name, value := m[1], m[2]
		// Variable references are not defaults.
		if strings.HasPrefix(value, "$") {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		params = append(params, Parameter{
			Name:         name,
			Label:        TitleCase(name),
			DefaultValue: value,
			IsFlag:       true,
			Origin:       OriginFlag,
		})
	}

	for _, m := range promptRe.FindAllStringSubmatch(content, -1) {
		label, name := m[1], m[2]
		if i, ok := lookupFold(params, name); ok {
			if params[i].Origin == OriginFlag {
				params[i].FlagName = params[i].Name
			}
			params[i].Name = name
			params[i].Label = label
			params[i].Origin = OriginPromptVariable
			params[i].IsFlag = false
			continue
		}
		params = append(params, Parameter{
			Name:   name,
			Label:  label,
			IsFlag: false,
			Origin: OriginPromptVariable,
		})
	}

	return params
}

// lookupFold finds the entry whose name equals name case-insensitively.
func lookupFold(params []Parameter, name string) (int, bool) {
	for i, p := range params {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.FlagName, name) {
			return i, true
		}
	}
	return 0, false
}

// TitleCase turns a flag name such as "machine-type" into "Machine Type".
func TitleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// Split partitions inputs into prompt variables and flags, filling gaps from
// parameter defaults. Inputs that name no parameter are treated as variables.
func Split(params []Parameter, inputs map[string]string) (vars, flags map[string]string) {
	vars = make(map[string]string)
	flags = make(map[string]string)
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.Name] = true
		value, ok := inputs[p.Name]
		if !ok && p.FlagName != "" {
			value, ok = inputs[p.FlagName]
			known[p.FlagName] = true
		}
		if !ok {
			value = p.DefaultValue
		}
		if p.Origin == OriginFlag {
			flags[p.Name] = value
		} else {
			vars[p.Name] = value
		}
	}
	for k, v := range inputs {
		if !known[k] {
			vars[k] = v
		}
	}
	return vars, flags
}

// WithInputs returns params extended with a prompt variable for every input
// that names no declared parameter, so ad-hoc values still hydrate.
func WithInputs(params []Parameter, inputs map[string]string) []Parameter {
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.Name] = true
		if p.FlagName != "" {
			known[p.FlagName] = true
		}
	}
	var extra []string
	for k := range inputs {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return params
	}
	sort.Strings(extra)
	out := append([]Parameter(nil), params...)
	for _, k := range extra {
		out = append(out, Parameter{Name: k, Label: k, Origin: OriginPromptVariable})
	}
	return out
}
