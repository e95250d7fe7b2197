// Package protocol decodes frames received on the notification socket.
//
// Every frame is a JSON object discriminated by its "type" field:
//
//	{"type": "connected",    "message": "...", "timestamp": "2024-05-01T10:00:00.000Z"}
//	{"type": "notification", "data": {...},    "timestamp": "2024-05-01T10:00:00.000Z"}
//	{"type": "error",        "message": "...", "timestamp": "2024-05-01T10:00:00.000Z"}
//
// Frames that are not JSON, lack a string type, or carry a type outside this set
// are rejected with ErrMalformedFrame or ErrUnknownType. Callers log and drop them.
package protocol
