package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Control is an out-of-band signal carried on the inbound feed.
type Control string

const (
	ControlStop                Control = "stop"
	ControlSummary             Control = "summary"
	ControlNextUninterruptible Control = "next_uninterruptible"
	ControlSourceAdded         Control = "source_added"
	ControlSourceUpdated       Control = "source_updated"
	ControlSourceRemoved       Control = "source_removed"
	ControlClearNotifications  Control = "clear_notifications"
)

// Message is one line of the inbound feed: either an event or a control
// signal. Source add/update/remove signals name the package they affect.
type Message struct {
	Event   *Event  `json:"event,omitempty"`
	Control Control `json:"control,omitempty"`
	Package string  `json:"package,omitempty"`
}

var (
	// ErrEmptyMessage is returned for a line that carries neither an event
	// nor a control signal.
	ErrEmptyMessage = errors.New("message has neither event nor control")

	// ErrMalformedLine is returned for a line that is not a valid message.
	ErrMalformedLine = errors.New("malformed feed line")
)

// maxLineSize bounds a single feed line.
const maxLineSize = 1 << 20

// Decoder reads JSON-lines messages. Blank lines and lines starting with
// '#' are skipped.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{scanner: s}
}

// Next returns the next message. A malformed line yields an error but does
// not stop the decoder; io.EOF marks the end of the feed.
func (d *Decoder) Next() (Message, error) {
	for d.scanner.Scan() {
		d.line++
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return Message{}, fmt.Errorf("line %d: %w: %w", d.line, ErrMalformedLine, err)
		}
		if msg.Event == nil && msg.Control == "" {
			return Message{}, fmt.Errorf("line %d: %w", d.line, ErrEmptyMessage)
		}
		return msg, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Message{}, err
	}
	return Message{}, io.EOF
}

// Line returns the number of the last line read.
func (d *Decoder) Line() int {
	return d.line
}
