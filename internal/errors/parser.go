// Package errors provides the typed errors templc returns for hard failures
// and the classifier that turns Go compiler messages into stable codes.
//
// Diagnostics about user sources never travel as Go errors; they are
// collected as diag.Diagnostic values. The classifier here only decides
// which code a host-language message carries.
package errors

import (
	"regexp"
)

// Host diagnostic codes.
const (
	CodeHostOther        = "GO2000"
	CodeHostSyntax       = "GO1001"
	CodeHostUndefined    = "GO2001"
	CodeHostUnused       = "GO2002"
	CodeHostTypeMismatch = "GO2003"
	CodeHostArgCount     = "GO2004"
	CodeHostImport       = "GO2005"
)

// HostClass is the classification of a single compiler message.
type HostClass struct {
	Code       string
	Suggestion string
}

type hostPattern struct {
	regex      *regexp.Regexp
	code       string
	suggestion string
}

var hostPatterns = []hostPattern{
	{
		regex:      regexp.MustCompile(`^could not import (\S+)`),
		code:       CodeHostImport,
		suggestion: "Only packages from the reference catalog can be imported",
	},
	{
		regex:      regexp.MustCompile(`imported and not used|declared and not used`),
		code:       CodeHostUnused,
		suggestion: "Remove the unused import or variable",
	},
	{
		regex:      regexp.MustCompile(`^undefined: |undefined \(type .+ has no (field or method|method)`),
		code:       CodeHostUndefined,
		suggestion: "Check the spelling or declare the symbol in a @code block",
	},
	{
		regex:      regexp.MustCompile(`^(not enough|too many) (arguments|return values)`),
		code:       CodeHostArgCount,
		suggestion: "Check the number of arguments",
	},
	{
		regex:      regexp.MustCompile(`^cannot use |mismatched types|^invalid operation|cannot convert`),
		code:       CodeHostTypeMismatch,
		suggestion: "Check the types of the values involved",
	},
}

// ClassifyHost maps a go/types or go/parser message to a diagnostic code.
// Syntax errors are classified by the caller, which knows where the message
// came from; everything unmatched falls back to CodeHostOther.
func ClassifyHost(message string, syntax bool) HostClass {
	if syntax {
		return HostClass{Code: CodeHostSyntax, Suggestion: "Check the Go syntax"}
	}

	for _, p := range hostPatterns {
		if p.regex.MatchString(message) {
			return HostClass{Code: p.code, Suggestion: p.suggestion}
		}
	}

	return HostClass{Code: CodeHostOther}
}
