package btmesh

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// mockPublisher implements HealthPublisher for testing.
type mockPublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []mockPublish
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) getMessages() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.messages...)
}

func decodeHealth(t *testing.T, p mockPublish) HealthMessage {
	t.Helper()
	var msg HealthMessage
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return msg
}

func TestNewHealthReporter_Defaults(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "btmesh"})

	if h.interval != DefaultHealthInterval {
		t.Errorf("interval = %v, want %v", h.interval, DefaultHealthInterval)
	}
	if h.LWTTopic() != "graylogic/health/btmesh" {
		t.Errorf("LWTTopic() = %q", h.LWTTopic())
	}
	// No publisher configured.
	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow() error = %v", err)
	}
}

func TestHealthReporter_Status(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		wantStatus HealthStatus
		wantReason string
	}{
		{"connected", true, HealthHealthy, ""},
		{"disconnected", false, HealthDegraded, "MQTT disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{connected: tt.connected}
			h := NewHealthReporter(HealthReporterConfig{
				BridgeID:  "btmesh",
				Version:   "1.2.3",
				Stack:     "mesh0",
				Publisher: pub,
				Stats:     func() BridgeStatistics { return BridgeStatistics{RequestsSent: 7, EventsReceived: 9} },
				Pending:   func() int { return 4 },
			})

			if err := h.PublishNow(); err != nil {
				t.Fatalf("PublishNow() error = %v", err)
			}

			msgs := pub.getMessages()
			if len(msgs) != 1 {
				t.Fatalf("published %d messages, want 1", len(msgs))
			}
			if msgs[0].Topic != "graylogic/health/mesh0" || msgs[0].QoS != 1 || !msgs[0].Retained {
				t.Errorf("publish = %s qos=%d retained=%v", msgs[0].Topic, msgs[0].QoS, msgs[0].Retained)
			}

			msg := decodeHealth(t, msgs[0])
			if msg.Status != tt.wantStatus || msg.Reason != tt.wantReason {
				t.Errorf("status = %s (%q), want %s (%q)", msg.Status, msg.Reason, tt.wantStatus, tt.wantReason)
			}
			if msg.Version != "1.2.3" || msg.DevicesPending != 4 {
				t.Errorf("message = %+v", msg)
			}
			if msg.Statistics == nil || msg.Statistics.RequestsSent != 7 || msg.Statistics.EventsReceived != 9 {
				t.Errorf("statistics = %+v", msg.Statistics)
			}
		})
	}
}

func TestHealthReporter_PeriodicAndStop(t *testing.T) {
	pub := &mockPublisher{connected: true}
	h := NewHealthReporter(HealthReporterConfig{
		BridgeID:  "btmesh",
		Interval:  10 * time.Millisecond,
		Publisher: pub,
	})

	h.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for len(pub.getMessages()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Stop()
	h.Stop()

	msgs := pub.getMessages()
	if len(msgs) < 3 {
		t.Fatalf("published %d messages, want at least 3", len(msgs))
	}
	if last := decodeHealth(t, msgs[len(msgs)-1]); last.Status != HealthStopping {
		t.Errorf("last status = %s, want stopping", last.Status)
	}
	stopping := 0
	for _, m := range msgs {
		if decodeHealth(t, m).Status == HealthStopping {
			stopping++
		}
	}
	if stopping != 1 {
		t.Errorf("stopping messages = %d, want 1", stopping)
	}
}

func TestHealthReporter_LWT(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "btmesh"})

	payload, err := h.LWTPayload()
	if err != nil {
		t.Fatalf("LWTPayload() error = %v", err)
	}
	msg := decodeHealth(t, mockPublish{Payload: payload})
	if msg.Status != HealthOffline || msg.Bridge != "btmesh" {
		t.Errorf("LWT = %+v", msg)
	}
}
