// Package diag defines the single diagnostic record templc reports and the
// functions that map templating and host-language messages into it.
package diag

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return "unknown"
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "info":
		return SevInfo, nil
	case "warning":
		return SevWarning, nil
	case "error":
		return SevError, nil
	}
	return SevInfo, fmt.Errorf("unknown severity %q", s)
}

// Origin tells which translation stage produced a diagnostic.
type Origin uint8

const (
	OriginTemplating Origin = iota
	OriginHost
)

func (o Origin) String() string {
	if o == OriginHost {
		return "host"
	}
	return "templating"
}

// Diagnostic is one message about the user's sources. File is empty and
// Line is zero when the message has no location.
type Diagnostic struct {
	Code     string
	Severity Severity
	Message  string
	File     string
	Line     int
	Origin   Origin
}

// HasLine reports whether the diagnostic is anchored to a source line.
func (d Diagnostic) HasLine() bool {
	return d.Line > 0
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.File != "" {
		b.WriteString(d.File)
		if d.HasLine() {
			fmt.Fprintf(&b, ":%d", d.Line)
		}
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%s %s: %s", d.Severity, d.Code, d.Message)
	return b.String()
}

type wireDiagnostic struct {
	Code     string  `json:"code"     yaml:"code"`
	Severity string  `json:"severity" yaml:"severity"`
	Message  string  `json:"message"  yaml:"message"`
	File     *string `json:"file"     yaml:"file"`
	Line     *int    `json:"line"     yaml:"line"`
	Origin   string  `json:"origin"   yaml:"origin"`
}

func (d Diagnostic) wire() wireDiagnostic {
	w := wireDiagnostic{
		Code:     d.Code,
		Severity: d.Severity.String(),
		Message:  d.Message,
		Origin:   d.Origin.String(),
	}
	if d.File != "" {
		file := d.File
		w.File = &file
	}
	if d.HasLine() {
		line := d.Line
		w.Line = &line
	}
	return w
}

// MarshalJSON renders a missing file or line as null.
func (d Diagnostic) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.wire())
}

// MarshalYAML renders a missing file or line as null.
func (d Diagnostic) MarshalYAML() (interface{}, error) {
	return d.wire(), nil
}

// UnmarshalJSON accepts the format produced by MarshalJSON.
func (d *Diagnostic) UnmarshalJSON(data []byte) error {
	var w wireDiagnostic
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	sev, err := ParseSeverity(w.Severity)
	if err != nil {
		return err
	}
	*d = Diagnostic{
		Code:     w.Code,
		Severity: sev,
		Message:  w.Message,
	}
	if w.File != nil {
		d.File = *w.File
	}
	if w.Line != nil {
		d.Line = *w.Line
	}
	if w.Origin == OriginHost.String() {
		d.Origin = OriginHost
	}
	return nil
}

// HasErrors reports whether any diagnostic has Error severity.
func HasErrors(diags []Diagnostic) bool {
	for i := range diags {
		if diags[i].Severity >= SevError {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics with exactly the given severity.
func Count(diags []Diagnostic, sev Severity) int {
	n := 0
	for i := range diags {
		if diags[i].Severity == sev {
			n++
		}
	}
	return n
}

// AboveInfo drops Info diagnostics.
func AboveInfo(diags []Diagnostic) []Diagnostic {
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		if d.Severity > SevInfo {
			out = append(out, d)
		}
	}
	return out
}

// Merge concatenates the groups in order and suppresses exact duplicates,
// keeping the first occurrence.
func Merge(groups ...[]Diagnostic) []Diagnostic {
	seen := make(map[Diagnostic]struct{})
	out := make([]Diagnostic, 0)
	for _, group := range groups {
		for _, d := range group {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}
