package midi

import (
	"strconv"
	"strings"
	"time"
)

// MessageType identifies the kind of an inbound channel message.
type MessageType uint8

const (
	NoteOn MessageType = iota
	NoteOff
	ControlChange
)

func (t MessageType) String() string {
	switch t {
	case NoteOn:
		return "note_on"
	case NoteOff:
		return "note_off"
	case ControlChange:
		return "control_change"
	}
	return "unknown"
}

// Message is a normalized inbound hardware message. Key carries the
// note number for note messages and the controller number for control
// changes; Value carries the velocity or controller value. Time is the
// receipt timestamp.
type Message struct {
	Type    MessageType
	Channel uint8
	Key     uint8
	Value   uint8
	Time    time.Time
}

// Signature is the canonical dispatch key: message type plus primary
// numeric field. Channel and velocity/value are deliberately excluded
// so a binding matches the physical control regardless of how hard it
// was pressed or which channel the device reports on.
func (m Message) Signature() string {
	switch m.Type {
	case NoteOn, NoteOff:
		return "note:" + strconv.Itoa(int(m.Key))
	case ControlChange:
		return "cc:" + strconv.Itoa(int(m.Key))
	}
	return ""
}

// IsPress reports whether the message is a press edge. Note-Off is
// never a press, and a zero velocity or zero controller value is a
// release.
func (m Message) IsPress() bool {
	switch m.Type {
	case NoteOn, ControlChange:
		return m.Value > 0
	}
	return false
}

// normalizeSignature validates a configured shortcut string and returns
// its canonical form, or "" when the string is not a usable signature.
func normalizeSignature(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	prefix, num, ok := strings.Cut(s, ":")
	if !ok {
		return ""
	}
	if prefix != "note" && prefix != "cc" {
		return ""
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n < 0 || n > 127 {
		return ""
	}
	return prefix + ":" + strconv.Itoa(n)
}
