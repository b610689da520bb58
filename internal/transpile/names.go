package transpile

import (
	"go/token"
	"path"
	"strings"
	"unicode"

	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TypeName derives the Go type name of a component from its file name:
// "user-card.tmpl" becomes UserCard.
func TypeName(logicalPath string) string {
	base := path.Base(logicalPath)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}

	// Casers keep state, so each call gets its own.
	caser := cases.Title(language.Und, cases.NoLower)
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	var b strings.Builder
	for _, w := range words {
		w = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, w)
		b.WriteString(caser.String(w))
	}

	name := b.String()
	if name == "" || !unicode.IsLetter([]rune(name)[0]) {
		name = "C" + name
	}
	return name
}

// GeneratedFileName is the name the generated Go file of a unit is parsed
// under.
func GeneratedFileName(logicalPath string) string {
	return strings.TrimPrefix(logicalPath, "/") + ".go"
}

func isComponentTag(tag string) bool {
	if strings.Contains(tag, ".") {
		return true
	}
	return tag != "" && tag[0] >= 'A' && tag[0] <= 'Z'
}

var voidElements = map[atom.Atom]bool{
	atom.Area:   true,
	atom.Base:   true,
	atom.Br:     true,
	atom.Col:    true,
	atom.Embed:  true,
	atom.Hr:     true,
	atom.Img:    true,
	atom.Input:  true,
	atom.Keygen: true,
	atom.Link:   true,
	atom.Meta:   true,
	atom.Param:  true,
	atom.Source: true,
	atom.Track:  true,
	atom.Wbr:    true,
}

func isVoidElement(tag string) bool {
	return voidElements[atom.Lookup([]byte(strings.ToLower(tag)))]
}

// isKnownElement reports whether tag is an HTML element name or a custom
// element (which must contain a hyphen).
func isKnownElement(tag string) bool {
	if strings.Contains(tag, "-") {
		return true
	}
	return atom.Lookup([]byte(strings.ToLower(tag))) != 0
}

// foreignElements switch off element checks for their subtree.
var foreignElements = map[atom.Atom]bool{
	atom.Svg:  true,
	atom.Math: true,
}

func isForeignElement(tag string) bool {
	return foreignElements[atom.Lookup([]byte(strings.ToLower(tag)))]
}

func isIdent(s string) bool {
	return token.IsIdentifier(s)
}

func lastSegment(importPath string) string {
	return path.Base(importPath)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
