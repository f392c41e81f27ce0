package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dkeye/Relay/internal/core"
	json "github.com/goccy/go-json"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown event type")
)

// Inbound is a decoded client frame with its loosely typed fields already
// coerced: Text and Name are strings, IsTyping is a strict bool.
type Inbound struct {
	Type     Type
	Text     string
	IsTyping bool
	Name     string
}

type rawInbound struct {
	Type     *string         `json:"type"`
	Text     json.RawMessage `json:"text"`
	IsTyping json.RawMessage `json:"isTyping"`
	Name     json.RawMessage `json:"name"`
}

// Encode serializes one event into a frame.
func Encode(e Event) (core.Frame, error) {
	if h, ok := e.(History); ok && h.Messages == nil {
		h.Messages = []Message{}
		e = h
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	return b, nil
}

// Decode parses a client frame. Errors wrap ErrMalformedFrame or
// ErrUnknownType and their text is meant to be shown to the client.
func Decode(data []byte) (Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if raw.Type == nil {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	in := Inbound{Type: Type(*raw.Type)}
	switch in.Type {
	case TypeMessage:
		in.Text = coerceString(raw.Text)
	case TypeTyping:
		in.IsTyping = coerceBool(raw.IsTyping)
	case TypeSetName:
		in.Name = coerceString(raw.Name)
	default:
		return Inbound{}, fmt.Errorf("%w %q", ErrUnknownType, *raw.Type)
	}
	return in, nil
}

func coerceString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "" || s == "null":
		return ""
	case s[0] == '"':
		var out string
		if err := json.Unmarshal(raw, &out); err != nil {
			return ""
		}
		return out
	case s[0] == '{' || s[0] == '[':
		return ""
	default:
		// numbers and booleans keep their literal form
		return s
	}
}

// coerceBool follows JSON truthiness: false, 0, "", null and absent are false.
func coerceBool(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "" || s == "null" || s == "false":
		return false
	case s == "true":
		return true
	case s[0] == '"':
		return coerceString(raw) != ""
	case s[0] == '{' || s[0] == '[':
		return true
	default:
		f, err := strconv.ParseFloat(s, 64)
		return err == nil && f != 0
	}
}
