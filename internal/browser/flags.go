// internal/browser/flags.go
package browser

import (
	"fmt"
	"strings"
)

// Flag is a single browser command line switch. An empty Value means a boolean switch.
type Flag struct {
	Name  string
	Value string
}

// String renders the flag in command line form.
func (f Flag) String() string {
	if f.Value == "" {
		return "--" + f.Name
	}
	return fmt.Sprintf("--%s=%s", f.Name, f.Value)
}

// BaselineFlags are applied to every launch and cannot be removed by callers.
var BaselineFlags = []Flag{
	{Name: "headless"},
	{Name: "no-sandbox"},
	{Name: "disable-setuid-sandbox"},
}

// protectedFlags may only be set by the baseline or by deployment configuration.
var protectedFlags = map[string]struct{}{
	"headless":                 {},
	"no-sandbox":               {},
	"disable-setuid-sandbox":   {},
	"remote-debugging-port":    {},
	"remote-debugging-address": {},
	"remote-debugging-pipe":    {},
	"user-data-dir":            {},
	"window-size":              {},
}

// IsProtected reports whether name is reserved for the baseline or deployment configuration.
func IsProtected(name string) bool {
	_, ok := protectedFlags[name]
	return ok
}

// ParseFlag converts "--name", "--name=value" or "name=value" into a Flag.
func ParseFlag(arg string) (Flag, error) {
	trimmed := strings.TrimSpace(arg)
	parts := strings.SplitN(trimmed, "=", 2)
	name := strings.TrimLeft(parts[0], "-")
	if name == "" || strings.ContainsAny(name, " \t") {
		return Flag{}, fmt.Errorf("malformed browser flag %q", arg)
	}
	f := Flag{Name: name}
	if len(parts) == 2 {
		f.Value = parts[1]
	}
	return f, nil
}

// MergeFlags builds the final flag list for a launch.
//
// Baseline flags come first, deployment flags are trusted and appended verbatim, and
// caller flags are appended unless they name a protected flag. A later flag with the
// same name replaces the value of an earlier one but keeps its position. The returned
// slice of ignored arguments lists caller input that was dropped.
func MergeFlags(deployment, caller []string) ([]Flag, []string, error) {
	merged := make([]Flag, 0, len(BaselineFlags)+len(deployment)+len(caller))
	index := make(map[string]int)

	add := func(f Flag) {
		if i, ok := index[f.Name]; ok {
			merged[i] = f
			return
		}
		index[f.Name] = len(merged)
		merged = append(merged, f)
	}

	for _, f := range BaselineFlags {
		add(f)
	}

	for _, arg := range deployment {
		f, err := ParseFlag(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("deployment flags: %w", err)
		}
		add(f)
	}

	var ignored []string
	for _, arg := range caller {
		f, err := ParseFlag(arg)
		if err != nil {
			return nil, nil, err
		}
		if IsProtected(f.Name) {
			ignored = append(ignored, arg)
			continue
		}
		add(f)
	}

	return merged, ignored, nil
}
