package naming

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// DefaultTemplate is used when no template is configured or the configured
// one does not validate.
const DefaultTemplate = "%NAME_%d.%m.%Y_%H-%M-%S"

const nameDirective = "NAME"

// calendarDirectives are rendered by strftime with C semantics.
const calendarDirectives = "aAwdbBmyYHIpMSzZjUW"

// TemplateError points at the offending directive of a filename template.
type TemplateError struct {
	Pos       int
	Directive string
	Reason    string
}

func (e *TemplateError) Error() string {
	if e.Directive == "" {
		return fmt.Sprintf("template error at position %d: %s", e.Pos, e.Reason)
	}
	return fmt.Sprintf("template error at position %d: %s %q", e.Pos, e.Reason, e.Directive)
}

type tokenKind int

const (
	tokLiteral tokenKind = iota
	tokName
	tokMicros
	tokCalendar
)

type token struct {
	kind tokenKind
	text string // literal text or "%x" calendar directive
}

// Template is a parsed filename template.
type Template struct {
	source string
	tokens []token
}

// ParseTemplate tokenizes s and rejects unknown directives and a trailing '%'.
func ParseTemplate(s string) (*Template, error) {
	t := &Template{source: s}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.tokens = append(t.tokens, token{kind: tokLiteral, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			lit.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			return nil, &TemplateError{Pos: i, Directive: "%", Reason: "trailing unescaped"}
		}
		if strings.HasPrefix(s[i+1:], nameDirective) {
			flush()
			t.tokens = append(t.tokens, token{kind: tokName})
			i += len(nameDirective)
			continue
		}
		c := s[i+1]
		switch {
		case c == '%':
			lit.WriteByte('%')
		case c == 'f':
			flush()
			t.tokens = append(t.tokens, token{kind: tokMicros})
		case strings.IndexByte(calendarDirectives, c) >= 0:
			flush()
			t.tokens = append(t.tokens, token{kind: tokCalendar, text: "%" + string(c)})
		default:
			return nil, &TemplateError{Pos: i, Directive: s[i : i+2], Reason: "unknown directive"}
		}
		i++
	}
	flush()
	return t, nil
}

// ValidateTemplate checks s without formatting anything.
func ValidateTemplate(s string) error {
	_, err := ParseTemplate(s)
	return err
}

// String returns the template source.
func (t *Template) String() string {
	return t.source
}

// Format expands the template for an already sanitized clip name.
// Output depends only on the inputs and t's location.
func (t *Template) Format(name string, ts time.Time) string {
	var b strings.Builder
	for _, tok := range t.tokens {
		switch tok.kind {
		case tokLiteral:
			b.WriteString(tok.text)
		case tokName:
			b.WriteString(name)
		case tokMicros:
			fmt.Fprintf(&b, "%06d", ts.Nanosecond()/int(time.Microsecond))
		case tokCalendar:
			b.WriteString(strftime.Format(tok.text, ts))
		}
	}
	return b.String()
}

// FormatFilename parses tpl and expands it in one step.
func FormatFilename(name string, ts time.Time, tpl string) (string, error) {
	t, err := ParseTemplate(tpl)
	if err != nil {
		return "", err
	}
	return t.Format(name, ts), nil
}
