package rules

import (
	"fmt"
	"strings"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
)

type propertyMatch struct {
	name  string
	value any
}

// PropertyFilter is the declarative filter: every listed property must
// equal the event's value. Properties left out of the definition are not
// checked.
type PropertyFilter struct {
	matches []propertyMatch
}

// NewPropertyFilter builds a filter from parsed property values. Properties
// are checked in a fixed order regardless of declaration order.
func NewPropertyFilter(props map[string]any) *PropertyFilter {
	f := &PropertyFilter{}
	for _, name := range propertyOrder {
		if v, ok := props[name]; ok {
			f.matches = append(f.matches, propertyMatch{name: name, value: v})
		}
	}
	return f
}

// Properties returns the names checked by the filter, in evaluation order.
func (f *PropertyFilter) Properties() []string {
	names := make([]string, len(f.matches))
	for i, m := range f.matches {
		names[i] = m.name
	}
	return names
}

func (f *PropertyFilter) String() string {
	parts := make([]string, len(f.matches))
	for i, m := range f.matches {
		v := m.value
		if m.name == PropEventType {
			v = event.Kind(m.value.(int))
		}
		parts[i] = fmt.Sprintf("%s=%v", m.name, v)
	}
	return strings.Join(parts, " ")
}

// Accept implements Filter.
func (f *PropertyFilter) Accept(ev *event.Event, ctx *Context) bool {
	for _, m := range f.matches {
		if !acceptProperty(m, ev, ctx) {
			return false
		}
	}
	return true
}

func acceptProperty(m propertyMatch, ev *event.Event, ctx *Context) bool {
	actual := eventValue(m.name, ev, ctx)
	if actual == nil {
		return false
	}
	if actual == m.value {
		return true
	}
	if m.name == PropClassName {
		return ctx.IsSubclass(ev, m.value.(string))
	}
	return false
}
