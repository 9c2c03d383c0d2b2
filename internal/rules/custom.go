package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RudolfWeeber/eyes-free-sub001/internal/event"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/notify"
	"github.com/RudolfWeeber/eyes-free-sub001/internal/ttypes"
)

// Names of the built-in custom capabilities.
const (
	CustomAddedText    = "added_text"
	CustomRemovedText  = "removed_text"
	CustomReplacedText = "replaced_text"
	CustomNotification = "notification"
	CustomInCallScreen = "in_call_screen"
	CustomPassword     = "password_field"
)

const (
	textCharacterTyped    = "character typed"
	textRemoved           = "removed"
	templateTextReplaced  = "%s replaced with %s"
	templateCharsReplaced = "%d characters replaced with %d"
)

var spokenPunctuation = map[string]string{
	"?":  "question mark",
	" ":  "space",
	",":  "comma",
	".":  "dot",
	"!":  "exclamation mark",
	"(":  "open parenthesis",
	")":  "close parenthesis",
	"\"": "double quote",
	";":  "semicolon",
	":":  "colon",
}

// spokenEquivalent names a single punctuation character. Anything else is
// returned unchanged.
func spokenEquivalent(s string) string {
	if name, ok := spokenPunctuation[s]; ok {
		return name
	}
	return s
}

// runeSlice returns s[from:from+n] counted in runes, or false when the range
// falls outside s.
func runeSlice(s string, from, n int) (string, bool) {
	r := []rune(s)
	if from < 0 || n < 0 || from+n > len(r) {
		return "", false
	}
	return string(r[from : from+n]), true
}

// RegisterBuiltins adds the built-in custom filters and formatters to reg.
func RegisterBuiltins(reg *Registry) {
	reg.RegisterFormatter(CustomAddedText, func() Formatter { return addedText{} })
	reg.RegisterFormatter(CustomRemovedText, func() Formatter { return removedText{} })
	reg.RegisterFormatter(CustomReplacedText, func() Formatter { return replacedText{} })
	reg.RegisterFormatter(CustomNotification, func() Formatter { return notificationText{} })
	reg.RegisterFormatter(CustomInCallScreen, func() Formatter { return inCallScreen{} })

	// A rule may use the same name for both halves.
	reg.RegisterFilter(CustomNotification, func() Filter { return notificationFilter{} })
	reg.RegisterFilter(CustomPassword, func() Filter { return passwordFilter{} })
}

// NewBuiltinRegistry returns a registry holding the built-in capabilities.
func NewBuiltinRegistry() *Registry {
	reg := NewRegistry()
	RegisterBuiltins(reg)
	return reg
}

// addedText speaks the characters inserted into a text field.
type addedText struct{}

func (addedText) String() string { return CustomAddedText }

func (addedText) Format(ev *event.Event, ctx *Context, utt *ttypes.Utterance) error {
	if ev.Password {
		utt.Text.WriteString(textCharacterTyped)
		return nil
	}

	added, ok := runeSlice(ctx.EventText(ev), ev.FromIndex, ev.AddedCount)
	if !ok {
		return fmt.Errorf("added range %d+%d outside text", ev.FromIndex, ev.AddedCount)
	}
	utt.Text.WriteString(spokenEquivalent(added))
	return nil
}

// removedText speaks the characters deleted from a text field.
type removedText struct{}

func (removedText) String() string { return CustomRemovedText }

func (removedText) Format(ev *event.Event, _ *Context, utt *ttypes.Utterance) error {
	if ev.Password {
		utt.Text.WriteString(textRemoved)
		return nil
	}

	removed, ok := runeSlice(ev.BeforeText, ev.FromIndex, ev.RemovedCount)
	if !ok {
		return fmt.Errorf("removed range %d+%d outside before text", ev.FromIndex, ev.RemovedCount)
	}
	utt.Text.WriteString(spokenEquivalent(removed))
	utt.Text.WriteString(" " + textRemoved)
	return nil
}

// replacedText speaks a replacement. Applications that rewrite the whole
// field on every keystroke are detected and reported as a single typed or
// removed character.
type replacedText struct{}

func (replacedText) String() string { return CustomReplacedText }

func (replacedText) Format(ev *event.Event, ctx *Context, utt *ttypes.Utterance) error {
	if ev.Password {
		fmt.Fprintf(&utt.Text, templateCharsReplaced, ev.RemovedCount, ev.AddedCount)
		return nil
	}

	text := []rune(ctx.EventText(ev))
	before := []rune(ev.BeforeText)

	switch {
	case len(text) == len(before)+1 && strings.HasPrefix(string(text), string(before)):
		utt.Text.WriteString(spokenEquivalent(string(text[len(text)-1:])))
	case len(text)+1 == len(before) && strings.HasPrefix(string(before), string(text)):
		utt.Text.WriteString(spokenEquivalent(string(before[len(before)-1:])))
		utt.Text.WriteString(" " + textRemoved)
	default:
		removed, ok := runeSlice(string(before), ev.FromIndex, ev.RemovedCount)
		if !ok {
			return fmt.Errorf("removed range %d+%d outside before text", ev.FromIndex, ev.RemovedCount)
		}
		added, ok := runeSlice(string(text), ev.FromIndex, ev.AddedCount)
		if !ok {
			return fmt.Errorf("added range %d+%d outside text", ev.FromIndex, ev.AddedCount)
		}
		fmt.Fprintf(&utt.Text, templateTextReplaced, removed, added)
	}
	return nil
}

// notificationText prefixes the notification's text with its type label.
type notificationText struct{}

func (notificationText) String() string { return CustomNotification }

func (notificationText) Format(ev *event.Event, ctx *Context, utt *ttypes.Utterance) error {
	if ev.Notification == nil || notify.IsPhoneCall(ev.Notification.Icon) {
		return nil
	}

	typ := notify.TypeForIcon(ev.Notification.Icon)
	if typ == notify.TypeUnknown {
		ctx.logger().Debug("Unknown notification icon", "icon", ev.Notification.Icon)
	} else {
		utt.Text.WriteString(typ.Label() + " ")
	}
	utt.Text.WriteString(ctx.EventText(ev))
	return nil
}

// In-call screen text layout.
const (
	inCallTitle        = 1
	inCallPhoto        = 2
	inCallName         = 4
	inCallLabel        = 6
	inCallSocialStatus = 7
)

// inCallScreen picks the caller details out of the in-call screen's text.
type inCallScreen struct{}

func (inCallScreen) String() string { return CustomInCallScreen }

func (inCallScreen) Format(ev *event.Event, _ *Context, utt *ttypes.Utterance) error {
	item := func(i int) string {
		if i < len(ev.Text) {
			return ev.Text[i]
		}
		return ""
	}
	appendItem := func(i int) {
		if s := item(i); s != "" {
			utt.Text.WriteString(s + " ")
		}
	}

	if len(ev.Text) == 1 {
		utt.Text.WriteString(ev.Text[0])
		return nil
	}

	appendItem(inCallTitle)
	name := item(inCallName)
	if name == "" {
		return nil
	}
	appendItem(inCallName)

	if !isPhoneNumber(name) {
		appendItem(inCallLabel)
		appendItem(inCallPhoto)
		appendItem(inCallSocialStatus)
	}
	return nil
}

func isPhoneNumber(s string) bool {
	_, err := strconv.ParseInt(strings.ReplaceAll(s, "-", ""), 10, 64)
	return err == nil
}

// notificationFilter accepts status notifications that carry a payload.
type notificationFilter struct{}

func (notificationFilter) String() string { return CustomNotification }

func (notificationFilter) Accept(ev *event.Event, _ *Context) bool {
	return ev.IsNotification() && ev.Notification != nil
}

// passwordFilter accepts events from password fields.
type passwordFilter struct{}

func (passwordFilter) String() string { return CustomPassword }

func (passwordFilter) Accept(ev *event.Event, _ *Context) bool {
	return ev.Password
}
