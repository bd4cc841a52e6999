package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestEncodeDecodeStateEvent(t *testing.T) {
	ev := NewStateEvent(LayerLink, StateEntityLink, "CONNECTING", "CONNECTED", "")
	ev.Timestamp = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	if !got.Timestamp.Equal(ev.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ev.Timestamp)
	}
	if got.StateChange == nil {
		t.Fatal("StateChange is nil")
	}
	if got.StateChange.NewState != "CONNECTED" || got.StateChange.OldState != "CONNECTING" {
		t.Errorf("StateChange = %+v", got.StateChange)
	}
	if got.Error != nil || got.Data != nil {
		t.Error("unexpected payload fields set")
	}
}

func TestNewDataEventTruncates(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, MaxCapturedData+10)
	ev := NewDataEvent(DirectionIn, payload)

	if ev.Size != len(payload) {
		t.Errorf("Size = %d, want %d", ev.Size, len(payload))
	}
	if len(ev.Data) != MaxCapturedData {
		t.Errorf("len(Data) = %d, want %d", len(ev.Data), MaxCapturedData)
	}
	if !ev.Truncated {
		t.Error("Truncated = false, want true")
	}

	payload[0] = 0
	if ev.Data[0] != 0xab {
		t.Error("DataEvent aliases the caller's buffer")
	}
}

func TestParseLayer(t *testing.T) {
	for _, l := range []Layer{LayerLink, LayerStack, LayerTransport, LayerSession, LayerApplication} {
		got, ok := ParseLayer(l.String())
		if !ok || got != l {
			t.Errorf("ParseLayer(%q) = %v, %v", l.String(), got, ok)
		}
	}
	if got, ok := ParseLayer("session"); !ok || got != LayerSession {
		t.Errorf("ParseLayer is case sensitive: %v, %v", got, ok)
	}
	if _, ok := ParseLayer("wire"); ok {
		t.Error("ParseLayer(wire) succeeded")
	}
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uplink.ulog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	logger.Log(NewStateEvent(LayerStack, StateEntityStack, "", "READY", "10.0.0.2/24"))
	errEv := NewErrorEvent(LayerTransport, errors.New("connection refused"), "connect")
	errEv.ConnectionID = "attempt-1"
	logger.Log(errEv)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Logging after close is ignored.
	logger.Log(NewStateEvent(LayerLink, StateEntityLink, "", "CONNECTED", ""))
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	var events []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Error == nil || events[1].Error.Message != "connection refused" {
		t.Errorf("second event = %+v", events[1])
	}
	if logger.Dropped() != 0 {
		t.Errorf("Dropped() = %d", logger.Dropped())
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uplink.ulog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(NewStateEvent(LayerSession, StateEntityAttempt, "IDLE", "TRANSPORT_CONNECTING", ""))
			}
		}()
	}
	wg.Wait()
	logger.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r := NewStreamReader(f, Filter{})
	defer r.Close()

	count := 0
	for {
		if _, err := r.Next(); err != nil {
			if err != io.EOF {
				t.Fatalf("Next: %v", err)
			}
			break
		}
		count++
	}
	if count != 200 {
		t.Errorf("read %d events, want 200", count)
	}
}

func TestFilter(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	session := LayerSession
	errCat := CategoryError

	events := []Event{
		{Timestamp: base, ConnectionID: "a", Layer: LayerTransport, Category: CategoryError},
		{Timestamp: base.Add(time.Second), ConnectionID: "a", Layer: LayerSession, Category: CategoryState},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "b", Layer: LayerSession, Category: CategoryError},
	}

	start := base.Add(time.Second)
	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"Empty", Filter{}, 3},
		{"ByConnection", Filter{ConnectionID: "a"}, 2},
		{"ByLayer", Filter{Layer: &session}, 2},
		{"ByCategory", Filter{Category: &errCat}, 2},
		{"ByStart", Filter{TimeStart: &start}, 2},
		{"Combined", Filter{Layer: &session, Category: &errCat}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			enc := NewEncoder(&buf)
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					t.Fatalf("Encode: %v", err)
				}
			}

			r := NewStreamReader(&buf, tt.filter)
			got := 0
			for {
				if _, err := r.Next(); err != nil {
					break
				}
				got++
			}
			if got != tt.want {
				t.Errorf("matched %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	slogger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewSlogAdapter(slogger)

	ev := NewErrorEvent(LayerSession, errors.New("bad certificate"), "handshake")
	ev.ConnectionID = "conn-123"
	ev.RemoteAddr = "192.168.10.78:8883"
	adapter.Log(ev)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log output: %v", err)
	}

	want := map[string]any{
		"msg":           "uplink",
		"layer":         "SESSION",
		"category":      "ERROR",
		"conn_id":       "conn-123",
		"remote":        "192.168.10.78:8883",
		"error_msg":     "bad certificate",
		"error_context": "handshake",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestMultiLogger(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b)

	m.Log(NewStateEvent(LayerLink, StateEntityLink, "", "CONNECTED", ""))

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out: a=%d b=%d, want 1 each", len(a.events), len(b.events))
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) is not NoopLogger")
	}
	c := &captureLogger{}
	if OrNoop(c) != c {
		t.Error("OrNoop changed a non-nil logger")
	}
}
