package rules

import (
	"github.com/charmbracelet/log"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// Context carries the per-event state that filters and formatters may
// consult besides the event itself.
type Context struct {
	// Activity is the class name of the current foreground window.
	Activity string

	// Classes resolves subtype relations. Nil disables subtype matching.
	Classes *ClassResolver

	Logger *log.Logger
}

// IsSubclass reports whether ev's source class is a subtype of super.
func (c *Context) IsSubclass(ev *event.Event, super string) bool {
	if c == nil || c.Classes == nil {
		return false
	}
	return c.Classes.IsSubclass(ev.PackageName, ev.ClassName, super)
}

// EventText returns the aggregated event text, dropping the state string
// of compound buttons.
func (c *Context) EventText(ev *event.Event) string {
	return ev.AggregatedText(c.IsSubclass(ev, ClassCompoundButton))
}

func (c *Context) logger() *log.Logger {
	if c == nil || c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}

// Filter is a predicate over events.
type Filter interface {
	Accept(ev *event.Event, ctx *Context) bool
}

// Formatter renders an event into an utterance.
type Formatter interface {
	Format(ev *event.Event, ctx *Context, utt *ttypes.Utterance) error
}

// Rule is an immutable (filter, formatter, metadata) triple. A nil Filter
// accepts every event; a nil Formatter leaves the utterance text empty.
type Rule struct {
	Source    string
	Ordinal   int
	Filter    Filter
	Formatter Formatter
	Metadata  map[string]any
}

// Apply evaluates the rule against ev. When the filter accepts, the rule's
// metadata is copied into utt and the formatter runs. A formatting failure
// is logged and leaves the utterance text unchanged; the rule still counts
// as matched.
func (r *Rule) Apply(ev *event.Event, ctx *Context, utt *ttypes.Utterance) bool {
	if r.Filter != nil && !r.Filter.Accept(ev, ctx) {
		return false
	}

	utt.MergeMetadata(r.Metadata)

	if r.Formatter != nil {
		if err := r.Formatter.Format(ev, ctx, utt); err != nil {
			ctx.logger().Warn("Formatting failed",
				"source", r.Source, "rule", r.Ordinal, "err", err)
		}
	}
	return true
}

// RuleSet is an ordered list of rules; evaluation stops at the first match.
type RuleSet []*Rule

// Apply runs the rules in order and returns the first one that matched.
func (s RuleSet) Apply(ev *event.Event, ctx *Context, utt *ttypes.Utterance) (*Rule, bool) {
	for _, r := range s {
		if r.Apply(ev, ctx, utt) {
			return r, true
		}
	}
	return nil, false
}
