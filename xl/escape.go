package xl

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/valyala/quicktemplate"
)

// writeEscaped writes s as XML element text. Control characters, which
// XML 1.0 cannot carry, are encoded as _xHHHH_; a literal _xHHHH_ sequence
// gets its underscore encoded so readers decode it back. Carriage returns
// become character references, as parsers fold raw ones into line feeds.
func writeEscaped(qw *quicktemplate.Writer, s string) {
	writeXMLString(qw, s, false)
}

// writeEscapedAttr writes s as an attribute value. Tabs and line feeds are
// character references there too, otherwise they are read back as spaces.
func writeEscapedAttr(qw *quicktemplate.Writer, s string) {
	writeXMLString(qw, s, true)
}

func writeXMLString(qw *quicktemplate.Writer, s string, attr bool) {
	s = validXMLText(s)
	if needsControlEscape(s) {
		s = escapeControl(s)
	}
	start := 0
	for i := 0; i < len(s); i++ {
		var ref string
		switch s[i] {
		case '\r':
			ref = "&#13;"
		case '\n':
			if attr {
				ref = "&#10;"
			}
		case '\t':
			if attr {
				ref = "&#9;"
			}
		}
		if ref == "" {
			continue
		}
		qw.E().S(s[start:i])
		qw.N().S(ref)
		start = i + 1
	}
	qw.E().S(s[start:])
}

// validXMLText replaces invalid UTF-8 with U+FFFD and drops the
// noncharacters U+FFFE and U+FFFF, which no XML document may contain.
func validXMLText(s string) string {
	if utf8.ValidString(s) && !strings.ContainsAny(s, "\uFFFE\uFFFF") {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == 0xFFFE || r == 0xFFFF {
			return -1
		}
		return r
	}, strings.ToValidUTF8(s, "\uFFFD"))
}

func needsControlEscape(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return true
		}
		if c == '_' && isEncodedChar(s[i:]) {
			return true
		}
	}
	return false
}

func escapeControl(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c < 0x20 && c != '\t' && c != '\n' && c != '\r':
			fmt.Fprintf(&b, "_x%04X_", c)
		case c == '_' && isEncodedChar(s[i:]):
			b.WriteString("_x005F_")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// isEncodedChar reports whether s starts with _xHHHH_.
func isEncodedChar(s string) bool {
	if len(s) < 7 || s[0] != '_' || s[1] != 'x' || s[6] != '_' {
		return false
	}
	for _, c := range []byte(s[2:6]) {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// needsSpacePreserve reports whether a <t> element must keep surrounding
// whitespace.
func needsSpacePreserve(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexAny(s[:1], " \t\n\r") == 0 || strings.LastIndexAny(s, " \t\n\r") == len(s)-1
}
