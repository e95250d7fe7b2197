package protocol

import (
	"errors"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		data        string
		wantKind    Kind
		wantMessage string
		wantData    string
		wantTS      time.Time
		wantErr     error
	}{
		{
			name:        "connected",
			data:        `{"type":"connected","message":"Connected to notification service","timestamp":"2024-05-01T10:00:00.000Z"}`,
			wantKind:    KindConnected,
			wantMessage: "Connected to notification service",
			wantTS:      ts,
		},
		{
			name:     "notification keeps payload bytes",
			data:     `{"type":"notification","data":{"id":"n1","title":"X"},"timestamp":"2024-05-01T10:00:00Z"}`,
			wantKind: KindNotification,
			wantData: `{"id":"n1","title":"X"}`,
			wantTS:   ts,
		},
		{
			name:        "error",
			data:        `{"type":"error","message":"session expired"}`,
			wantKind:    KindError,
			wantMessage: "session expired",
		},
		{
			name:     "bad timestamp is tolerated",
			data:     `{"type":"connected","message":"hi","timestamp":"yesterday"}`,
			wantKind: KindConnected,
			// Timestamp stays zero
			wantMessage: "hi",
		},
		{
			name:    "not json",
			data:    `hello`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "truncated json",
			data:    `{"type":"notification","data":{`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "missing type",
			data:    `{"message":"x"}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "non string type",
			data:    `{"type":7}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "array frame",
			data:    `[1,2,3]`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "unknown type",
			data:    `{"type":"presence","data":{}}`,
			wantErr: ErrUnknownType,
		},
		{
			name:    "notification without data",
			data:    `{"type":"notification"}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "message of wrong type",
			data:    `{"type":"error","message":42}`,
			wantErr: ErrMalformedFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Decode([]byte(tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() unexpected error: %v", err)
			}
			if frame.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", frame.Kind, tt.wantKind)
			}
			if frame.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", frame.Message, tt.wantMessage)
			}
			if string(frame.Data) != tt.wantData {
				t.Errorf("Data = %s, want %s", frame.Data, tt.wantData)
			}
			if !frame.Timestamp.Equal(tt.wantTS) {
				t.Errorf("Timestamp = %v, want %v", frame.Timestamp, tt.wantTS)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	data, err := Encode(Frame{Kind: KindNotification, Data: []byte(`{"id":"n1"}`), Timestamp: ts})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"type":"notification","data":{"id":"n1"},"timestamp":"2024-05-01T10:00:00.000Z"}`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}

	frame, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode of encoded frame failed: %v", err)
	}
	if frame.Kind != KindNotification || !frame.Timestamp.Equal(ts) {
		t.Errorf("decoded frame = %+v", frame)
	}

	if _, err := Encode(Frame{Kind: "bogus"}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Encode(bogus) error = %v, want ErrUnknownType", err)
	}
}
