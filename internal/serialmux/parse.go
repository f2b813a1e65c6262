package serialmux

import (
	"bytes"
	"fmt"
	"strconv"
)

// EventKind identifies a hub line.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventSample            // "S <value>": one 16-bit ADC reading
	EventButton            // "B": button rising edge
	EventRotary            // "R <0|1>": encoder clock edge with the paired channel level
	EventStatus            // "# ...": hub status or command echo
)

func (k EventKind) String() string {
	switch k {
	case EventSample:
		return "sample"
	case EventButton:
		return "button"
	case EventRotary:
		return "rotary"
	case EventStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Event is one parsed hub line.
type Event struct {
	Kind  EventKind
	Value uint16 // sample value
	Level bool   // paired encoder channel level
	Text  string // status text
}

// ParseLine decodes one hub line without its newline.
func ParseLine(line []byte) (Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{}, fmt.Errorf("empty line")
	}

	switch line[0] {
	case '#':
		return Event{Kind: EventStatus, Text: string(bytes.TrimSpace(line[1:]))}, nil
	case 'B':
		if len(line) != 1 {
			return Event{}, fmt.Errorf("malformed button line %q", line)
		}
		return Event{Kind: EventButton}, nil
	case 'S':
		arg, ok := argument(line)
		if !ok {
			return Event{}, fmt.Errorf("malformed sample line %q", line)
		}
		v, err := strconv.ParseUint(arg, 10, 16)
		if err != nil {
			return Event{}, fmt.Errorf("bad sample %q: %w", arg, err)
		}
		return Event{Kind: EventSample, Value: uint16(v)}, nil
	case 'R':
		arg, ok := argument(line)
		if !ok || (arg != "0" && arg != "1") {
			return Event{}, fmt.Errorf("malformed rotary line %q", line)
		}
		return Event{Kind: EventRotary, Level: arg == "1"}, nil
	}
	return Event{Kind: EventUnknown, Text: string(line)}, fmt.Errorf("unknown hub line %q", line)
}

func argument(line []byte) (string, bool) {
	if len(line) < 3 || line[1] != ' ' {
		return "", false
	}
	return string(bytes.TrimSpace(line[2:])), true
}
