package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
)

// Kind identifies one of the frame types the server sends.
type Kind string

const (
	KindConnected    Kind = "connected"
	KindNotification Kind = "notification"
	KindError        Kind = "error"
)

// Valid reports whether k is a known frame kind.
func (k Kind) Valid() bool {
	switch k {
	case KindConnected, KindNotification, KindError:
		return true
	}
	return false
}

// Frame is a decoded server frame.
type Frame struct {
	Kind      Kind
	Message   string          // connected and error frames
	Data      json.RawMessage // notification payload, passed through untouched
	Timestamp time.Time       // zero when absent or not ISO 8601
}

// wireFrame is the JSON shape on the socket.
type wireFrame struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Decode parses a raw frame.
func Decode(data []byte) (Frame, error) {
	if !gjson.ValidBytes(data) {
		return Frame{}, fmt.Errorf("%w: invalid json", ErrMalformedFrame)
	}

	// Peek the discriminator before the typed decode
	typ := gjson.GetBytes(data, "type")
	if typ.Type != gjson.String {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	kind := Kind(typ.Str)
	if !kind.Valid() {
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownType, typ.Str)
	}

	var wire wireFrame
	if err := json.Unmarshal(data, &wire); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if kind == KindNotification && len(wire.Data) == 0 {
		return Frame{}, fmt.Errorf("%w: notification without data", ErrMalformedFrame)
	}

	frame := Frame{
		Kind:    kind,
		Message: wire.Message,
		Data:    wire.Data,
	}
	if wire.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, wire.Timestamp); err == nil {
			frame.Timestamp = ts
		}
	}

	return frame, nil
}

// Encode renders a frame in wire form. Used by test servers and tools.
func Encode(f Frame) ([]byte, error) {
	if !f.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Kind)
	}

	wire := wireFrame{
		Type:    string(f.Kind),
		Message: f.Message,
		Data:    f.Data,
	}
	if !f.Timestamp.IsZero() {
		wire.Timestamp = f.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}

	return json.Marshal(wire)
}
