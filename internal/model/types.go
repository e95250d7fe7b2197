package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// namespace scopes derived notification IDs.
var namespace = uuid.MustParse("6f1c3f0e-4b8e-4f7a-9c55-2d1f0b1c7e21")

// Notification is one received notification payload.
type Notification struct {
	ID         uuid.UUID       // Primary key, stable for a given identity and source id
	SourceID   string          // Payload "id", empty when absent
	Identity   string          // Session identity it was delivered to
	Title      string          // Payload "title", empty when absent
	Payload    json.RawMessage // Full payload as received
	ServerTS   int64           // Frame timestamp (µs since epoch)
	ReceivedAt int64           // Client receive timestamp (µs since epoch)
}

// NewNotification builds a record from a notification payload. The same source
// id for the same identity always maps to the same ID, so redelivered
// notifications deduplicate; payloads without an id get a random one.
func NewNotification(identity string, payload json.RawMessage, serverTime, receivedAt time.Time) Notification {
	n := Notification{
		Identity:   identity,
		Payload:    payload,
		ServerTS:   micros(serverTime),
		ReceivedAt: micros(receivedAt),
	}

	if gjson.ValidBytes(payload) {
		if id := gjson.GetBytes(payload, "id"); id.Exists() && id.String() != "" {
			n.SourceID = id.String()
		}
		if title := gjson.GetBytes(payload, "title"); title.Type == gjson.String {
			n.Title = title.Str
		}
	}

	if n.SourceID != "" {
		n.ID = uuid.NewSHA1(namespace, []byte(identity+"\x00"+n.SourceID))
	} else {
		n.ID = uuid.New()
	}

	return n
}

func micros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}
