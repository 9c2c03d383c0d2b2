package rules

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// Property names understood by filters, selectors and metadata.
const (
	PropEventType          = "eventType"
	PropPackageName        = "packageName"
	PropClassName          = "className"
	PropText               = "text"
	PropBeforeText         = "beforeText"
	PropContentDescription = "contentDescription"
	PropEventTime          = "eventTime"
	PropItemCount          = "itemCount"
	PropCurrentItemIndex   = "currentItemIndex"
	PropFromIndex          = "fromIndex"
	PropAddedCount         = "addedCount"
	PropRemovedCount       = "removedCount"
	PropChecked            = "checked"
	PropEnabled            = "enabled"
	PropFullScreen         = "fullScreen"
	PropPassword           = "password"
	PropActivity           = "activity"
	PropQueuing            = "queuing"
)

type propType int

const (
	propString propType = iota
	propInt
	propFloat
	propBool
)

// propertyOrder is the evaluation order for filters: the cheapest and most
// selective discriminators come first.
var propertyOrder = []string{
	PropEventType,
	PropPackageName,
	PropClassName,
	PropActivity,
	PropPassword,
	PropChecked,
	PropEnabled,
	PropFullScreen,
	PropItemCount,
	PropCurrentItemIndex,
	PropFromIndex,
	PropAddedCount,
	PropRemovedCount,
	PropEventTime,
	PropText,
	PropBeforeText,
	PropContentDescription,
	PropQueuing,
}

var propertyTypes = map[string]propType{
	PropEventType:          propInt,
	PropPackageName:        propString,
	PropClassName:          propString,
	PropText:               propString,
	PropBeforeText:         propString,
	PropContentDescription: propString,
	PropEventTime:          propFloat,
	PropItemCount:          propInt,
	PropCurrentItemIndex:   propInt,
	PropFromIndex:          propInt,
	PropAddedCount:         propInt,
	PropRemovedCount:       propInt,
	PropChecked:            propBool,
	PropEnabled:            propBool,
	PropFullScreen:         propBool,
	PropPassword:           propBool,
	PropActivity:           propString,
	PropQueuing:            propInt,
}

// IsProperty reports whether name is a known property.
func IsProperty(name string) bool {
	_, ok := propertyTypes[name]
	return ok
}

// PropertyNames returns every known property name.
func PropertyNames() []string {
	return append([]string(nil), propertyOrder...)
}

// parseProperty converts a document scalar into the property's type. Event
// kinds and queuing modes may be given by name.
func parseProperty(name string, node *yaml.Node) (any, error) {
	if node.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("property %s: expected scalar at line %d", name, node.Line)
	}
	raw := strings.TrimSpace(node.Value)

	switch name {
	case PropEventType:
		if k, ok := event.ParseKind(raw); ok {
			return int(k), nil
		}
	case PropQueuing:
		if m, ok := ttypes.ParseQueueMode(raw); ok {
			return int(m), nil
		}
	}

	switch propertyTypes[name] {
	case propInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		return v, nil
	case propFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		return v, nil
	case propBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		return v, nil
	default:
		return node.Value, nil
	}
}

// eventValue returns the value of a property for ev, or nil when the event
// does not carry it.
func eventValue(name string, ev *event.Event, ctx *Context) any {
	str := func(s string) any {
		if s == "" {
			return nil
		}
		return s
	}

	switch name {
	case PropEventType:
		return int(ev.Kind)
	case PropPackageName:
		return str(ev.PackageName)
	case PropClassName:
		return str(ev.ClassName)
	case PropText:
		return str(ctx.EventText(ev))
	case PropBeforeText:
		return str(ev.BeforeText)
	case PropContentDescription:
		return str(ev.ContentDescription)
	case PropEventTime:
		return float64(ev.EventTime)
	case PropItemCount:
		return ev.ItemCount
	case PropCurrentItemIndex:
		return ev.CurrentItemIndex
	case PropFromIndex:
		return ev.FromIndex
	case PropAddedCount:
		return ev.AddedCount
	case PropRemovedCount:
		return ev.RemovedCount
	case PropChecked:
		return ev.Checked
	case PropEnabled:
		return ev.Enabled
	case PropFullScreen:
		return ev.FullScreen
	case PropPassword:
		return ev.Password
	case PropActivity:
		return str(ctx.Activity)
	default:
		return nil
	}
}
