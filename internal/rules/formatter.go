package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// SelectorKind identifies how a selector produces its argument.
type SelectorKind int

const (
	// SelectorProperty yields the value of an event property.
	SelectorProperty SelectorKind = iota

	// SelectorRegex yields the first match of a pattern in the event text.
	SelectorRegex

	// SelectorSplit replaces the whole argument list with the event text
	// split around a pattern, and ends selector evaluation.
	SelectorSplit

	// SelectorText yields a literal.
	SelectorText
)

// Selector produces one formatter argument.
type Selector struct {
	Kind     SelectorKind
	Property string
	Pattern  *regexp.Regexp
	Text     string
}

func (s Selector) String() string {
	switch s.Kind {
	case SelectorProperty:
		return "property:" + s.Property
	case SelectorRegex:
		return "regex:" + s.Pattern.String()
	case SelectorSplit:
		return "split:" + s.Pattern.String()
	default:
		return "text:" + strconv.Quote(s.Text)
	}
}

// TemplateFormatter is the declarative formatter. With a template, selector
// outputs are substituted positionally; without one they are joined with
// single spaces.
type TemplateFormatter struct {
	template  string
	arity     int
	selectors []Selector
}

// NewTemplateFormatter builds a formatter. Positional references written as
// %1$s are accepted alongside Go's %[1]s.
func NewTemplateFormatter(template string, selectors []Selector) *TemplateFormatter {
	tpl := convertPositional(template)
	return &TemplateFormatter{
		template:  tpl,
		arity:     templateArity(tpl),
		selectors: selectors,
	}
}

// Template returns the template in Go fmt syntax.
func (f *TemplateFormatter) Template() string {
	return f.template
}

func (f *TemplateFormatter) String() string {
	sels := make([]string, len(f.selectors))
	for i, s := range f.selectors {
		sels[i] = s.String()
	}
	if f.template == "" {
		return strings.Join(sels, " ")
	}
	return strconv.Quote(f.template) + " " + strings.Join(sels, " ")
}

// Selectors returns the selectors in evaluation order.
func (f *TemplateFormatter) Selectors() []Selector {
	return f.selectors
}

// Format implements Formatter.
func (f *TemplateFormatter) Format(ev *event.Event, ctx *Context, utt *ttypes.Utterance) error {
	args := f.arguments(ev, ctx)

	if f.template == "" {
		utt.Text.WriteString(strings.Join(args, " "))
		return nil
	}

	if len(args) < f.arity {
		return ttypes.NewPipelineError(ttypes.ErrorCodeFormatMismatch,
			fmt.Sprintf("template needs %d arguments, got %d", f.arity, len(args)), nil).
			WithContext("template", f.template)
	}

	values := make([]any, f.arity)
	for i := range values {
		values[i] = args[i]
	}
	utt.Text.WriteString(fmt.Sprintf(f.template, values...))
	return nil
}

func (f *TemplateFormatter) arguments(ev *event.Event, ctx *Context) []string {
	args := make([]string, 0, len(f.selectors))
	for _, s := range f.selectors {
		switch s.Kind {
		case SelectorProperty:
			v := eventValue(s.Property, ev, ctx)
			if v == nil {
				args = append(args, "")
			} else {
				args = append(args, fmt.Sprint(v))
			}
		case SelectorRegex:
			args = append(args, s.Pattern.FindString(ctx.EventText(ev)))
		case SelectorSplit:
			return splitText(s.Pattern, ctx.EventText(ev))
		case SelectorText:
			args = append(args, s.Text)
		}
	}
	return args
}

// splitText splits text around pattern, dropping trailing empty fields.
func splitText(pattern *regexp.Regexp, text string) []string {
	parts := pattern.Split(text, -1)
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

var javaPositional = regexp.MustCompile(`%(\d+)\$`)

func convertPositional(tpl string) string {
	return javaPositional.ReplaceAllString(tpl, "%[$1]")
}

var verbPattern = regexp.MustCompile(`%(?:\[(\d+)\])?[-+# 0]*\d*(?:\.\d+)?([a-zA-Z%])`)

// templateArity returns how many arguments tpl consumes.
func templateArity(tpl string) int {
	arity, next := 0, 0
	for _, m := range verbPattern.FindAllStringSubmatch(tpl, -1) {
		if m[2] == "%" {
			continue
		}
		if m[1] != "" {
			next, _ = strconv.Atoi(m[1])
		} else {
			next++
		}
		arity = max(arity, next)
	}
	return arity
}
