// Package sanitize cleans and validates the user-controlled strings that end
// up in remote object addresses or on screen.
//
// The cleaning functions (Segment, Path, Display) are total: they never fail
// and never panic, whatever the input. The Validate functions are a second,
// independent line of defense and must be called on the cleaned value before
// it is handed to the storage gateway.
package sanitize

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxSegmentLength bounds one path segment, in bytes.
	MaxSegmentLength = 255
	// MaxKeyLength bounds a full object key, in bytes.
	MaxKeyLength = 1024

	Separator = "/"

	// upper bound on cleaning passes; each pass after the first either
	// shrinks the string or leaves it unchanged.
	maxPasses = MaxSegmentLength + 8
)

// ErrInvalid is wrapped by every validation failure in this package.
var ErrInvalid = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// encodedTraversal matches percent-encoded dots, slashes and backslashes,
// including double encoding (%252e) and overlong UTF-8 forms (%c0%ae).
var encodedTraversal = regexp.MustCompile(`(?i)%(?:25)*(?:2e|2f|5c|c0%(?:25)*(?:ae|af)|c1%(?:25)*(?:9c|1c)|e0%(?:25)*80%(?:25)*ae)`)

// Segment cleans a single path component. It strips traversal sequences and
// their encoded variants, backslashes, separators, control characters and
// invalid UTF-8, trims leading and trailing dots, separators and spaces, and
// truncates to MaxSegmentLength bytes. Segment(Segment(s)) == Segment(s).
func Segment(s string) string {
	cur := s
	for i := 0; i < maxPasses; i++ {
		next := segmentPass(cur)
		if next == cur {
			return next
		}
		cur = next
	}
	return cur
}

func segmentPass(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = norm.NFKC.String(s)
	s = encodedTraversal.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\\' || r == '/' || isControl(r) {
			return -1
		}
		return r
	}, s)
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", "")
	}
	s = trimEdges(s)
	s = truncate(s, MaxSegmentLength)
	return trimEdges(s)
}

func trimEdges(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r == '.' || r == '/' || unicode.IsSpace(r)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// isControl reports control characters plus the bidirectional formatting
// runes that can make a rendered name lie about its content.
func isControl(r rune) bool {
	if unicode.IsControl(r) {
		return true
	}
	switch {
	case r >= 0x202A && r <= 0x202E, r >= 0x2066 && r <= 0x2069, r == 0x200E, r == 0x200F:
		return true
	}
	return false
}

// Path cleans a slash-separated object address segment by segment. Empty
// segments are dropped. A trailing separator, which marks a container
// (prefix) address rather than a leaf, is preserved. Backslashes are treated
// as separators.
func Path(p string) string {
	container := strings.HasSuffix(p, Separator) || strings.HasSuffix(p, `\`)
	p = strings.ReplaceAll(p, `\`, Separator)

	parts := strings.Split(p, Separator)
	clean := parts[:0]
	for _, part := range parts {
		if seg := Segment(part); seg != "" {
			clean = append(clean, seg)
		}
	}
	if len(clean) == 0 {
		return ""
	}
	out := strings.Join(clean, Separator)
	if container {
		out += Separator
	}
	return out
}

// IsContainer reports whether a cleaned path addresses a container.
func IsContainer(p string) bool {
	return p == "" || strings.HasSuffix(p, Separator)
}

// Join cleans and joins a container prefix and a leaf name.
func Join(prefix, name string) string {
	prefix = Path(prefix)
	if prefix != "" && !IsContainer(prefix) {
		prefix += Separator
	}
	return Path(prefix + name)
}

// Display prepares a user-controlled string for rendering in a UI: control
// and bidi formatting characters are removed and HTML metacharacters escaped.
func Display(s string) string {
	return html.EscapeString(Printable(s))
}

// Printable replaces invalid UTF-8 and removes control and bidi formatting
// characters, for terminal output.
func Printable(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.Map(func(r rune) rune {
		if isControl(r) {
			return -1
		}
		return r
	}, s)
}
