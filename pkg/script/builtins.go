package script

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	sleepRe = regexp.MustCompile(`^sleep (\d+)`)
	echoRe  = regexp.MustCompile(`^echo (.*)`)
)

// SleepSeconds recognises `sleep N` and returns N.
func SleepSeconds(command string) (int, bool) {
	m := sleepRe.FindStringSubmatch(command)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// EchoText recognises `echo X` and returns X with one pair of matching outer
// quotes removed. Nothing else is interpreted.
func EchoText(command string) (string, bool) {
	m := echoRe.FindStringSubmatch(command)
	if m == nil {
		return "", false
	}
	out := m[1]
	if len(out) >= 2 {
		if (strings.HasPrefix(out, `"`) && strings.HasSuffix(out, `"`)) ||
			(strings.HasPrefix(out, "'") && strings.HasSuffix(out, "'")) {
			out = out[1 : len(out)-1]
		}
	}
	return out, true
}
