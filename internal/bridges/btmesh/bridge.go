package btmesh

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/commissioning"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/registry"
)

const (
	// eventTopicParts is the number of segments in graylogic/event/{stack}/{type}.
	eventTopicParts = 4

	// DefaultEventQueueSize bounds events received but not yet dispatched.
	DefaultEventQueueSize = 1024
)

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// EventHandler receives decoded stack events. commissioning.Controller
// implements it.
type EventHandler interface {
	OnDiscovery(b mesh.Beacon) registry.Result
	OnProvisioned(addr mesh.Address, id uuid.UUID)
	OnProvisioningFailed(id uuid.UUID, reason string)
	OnAppKeyResult(addr mesh.Address, status mesh.Status)
	OnCompositionData(addr mesh.Address, fragment []byte)
	OnCompositionEnd(addr mesh.Address)
	OnBindResult(addr mesh.Address, status mesh.Status)
	OnPublicationResult(addr mesh.Address, status mesh.Status)
	OnSubscriptionResult(addr mesh.Address, status mesh.Status)
	OnProxyResult(addr mesh.Address, status mesh.Status)
	OnHeartbeatResult(addr mesh.Address, status mesh.Status)
	Reset()
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// MQTTClient is the broker connection. Required.
	MQTTClient MQTTClient

	// BridgeID identifies the bridge in health messages. Default: "btmesh".
	BridgeID string

	// Stack is the stack topic segment. Default: "btmesh".
	Stack string

	// Version is reported in health messages.
	Version string

	// HealthInterval is how often health is published. Default: 30s.
	HealthInterval time.Duration

	// QueueSize bounds the event queue. Default: 1024.
	QueueSize int

	// Pending reports live registry entries for health messages. Optional.
	Pending func() int

	Logger Logger
}

// Bridge carries mesh stack requests and events over MQTT.
//
// Requests are published as RequestMessage JSON. Events are decoded on the
// MQTT callback goroutine and queued to a single dispatch goroutine, so the
// handler sees them in arrival order and may publish requests without
// blocking the MQTT client.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt   MQTTClient
	stack  string
	health *HealthReporter
	now    func() time.Time

	handler   EventHandler
	handlerMu sync.RWMutex

	events chan EventMessage

	requestsSent   atomic.Uint64
	eventsReceived atomic.Uint64
	errors         atomic.Uint64
	lastEvent      atomic.Int64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call SetHandler and then Start.
//
// Returns:
//   - *Bridge: Ready to start
//   - error: If the MQTT client is missing
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	stack := opts.Stack
	if stack == "" {
		stack = DefaultStack
	}
	bridgeID := opts.BridgeID
	if bridgeID == "" {
		bridgeID = DefaultStack
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultEventQueueSize
	}

	b := &Bridge{
		mqtt:   opts.MQTTClient,
		stack:  stack,
		now:    time.Now,
		events: make(chan EventMessage, queueSize),
		done:   make(chan struct{}),
		logger: opts.Logger,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  bridgeID,
		Version:   opts.Version,
		Stack:     stack,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Stats:     b.Statistics,
		Pending:   opts.Pending,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// SetHandler sets the receiver of stack events.
func (b *Bridge) SetHandler(h EventHandler) {
	b.handlerMu.Lock()
	b.handler = h
	b.handlerMu.Unlock()
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

// Health returns the health reporter, for LWT registration.
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// Start subscribes to stack events and begins dispatching and health
// reporting.
//
// Parameters:
//   - ctx: Context that stops dispatch and health reporting when cancelled
//
// Returns:
//   - error: If the event subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.wg.Add(1)
	go b.dispatchLoop(ctx)

	topic := EventSubscribeTopic(b.stack)
	if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}
	b.logInfo("subscribed to stack events", "topic", topic)

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started", "stack", b.stack)
	return nil
}

// Stop ends dispatch and health reporting. Queued events are dropped.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Statistics returns the bridge counters.
func (b *Bridge) Statistics() BridgeStatistics {
	stats := BridgeStatistics{
		RequestsSent:   b.requestsSent.Load(),
		EventsReceived: b.eventsReceived.Load(),
		Errors:         b.errors.Load(),
	}
	if ns := b.lastEvent.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		stats.LastEvent = &t
	}
	return stats
}

// ─── mesh.Stack ─────────────────────────────────────────────────────────────

// CreateProvisioningSession implements mesh.Provisioner.
func (b *Bridge) CreateProvisioningSession(id uuid.UUID) error {
	return b.request(ActionCreateProvisioningSession, DeviceParams{UUID: id})
}

// ProvisionAdvDevice implements mesh.Provisioner.
func (b *Bridge) ProvisionAdvDevice(id uuid.UUID) error {
	return b.request(ActionProvisionAdvDevice, DeviceParams{UUID: id})
}

// AddAppKey implements mesh.Provisioner.
func (b *Bridge) AddAppKey(addr mesh.Address, appKeyIndex, netKeyIndex uint16) error {
	return b.request(ActionAddAppKey, AppKeyParams{
		Address:     addr,
		AppKeyIndex: appKeyIndex,
		NetKeyIndex: netKeyIndex,
	})
}

// GetComposition implements mesh.ConfigClient.
func (b *Bridge) GetComposition(addr mesh.Address, page uint8) error {
	return b.request(ActionGetComposition, CompositionParams{Address: addr, Page: page})
}

// BindModel implements mesh.ConfigClient.
func (b *Bridge) BindModel(req mesh.BindRequest) error {
	return b.request(ActionBindModel, req)
}

// SetPublication implements mesh.ConfigClient.
func (b *Bridge) SetPublication(req mesh.PublicationRequest) error {
	return b.request(ActionSetPublication, req)
}

// AddSubscription implements mesh.ConfigClient.
func (b *Bridge) AddSubscription(req mesh.SubscriptionRequest) error {
	return b.request(ActionAddSubscription, req)
}

// SetProxy implements mesh.ConfigClient.
func (b *Bridge) SetProxy(addr mesh.Address, enabled bool) error {
	return b.request(ActionSetProxy, ProxyParams{Address: addr, Enabled: enabled})
}

// SetHeartbeatPublication implements mesh.ConfigClient.
func (b *Bridge) SetHeartbeatPublication(req mesh.HeartbeatRequest) error {
	return b.request(ActionSetHeartbeatPublication, req)
}

// DeleteProvisioningEntry implements mesh.ConfigClient.
func (b *Bridge) DeleteProvisioningEntry(id uuid.UUID) error {
	return b.request(ActionDeleteProvisioningEntry, DeviceParams{UUID: id})
}

func (b *Bridge) request(action string, params any) error {
	if !b.mqtt.IsConnected() {
		b.errors.Add(1)
		return fmt.Errorf("%w: %s", ErrNotConnected, action)
	}

	msg := RequestMessage{
		RequestID:  uuid.NewString(),
		Timestamp:  b.now().UTC(),
		Action:     action,
		Parameters: params,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.errors.Add(1)
		return fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, action, err)
	}

	if err := b.mqtt.Publish(RequestTopic(b.stack, action), payload, 1, false); err != nil {
		b.errors.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, action, err)
	}

	b.requestsSent.Add(1)
	b.logDebug("request published", "action", action, "request_id", msg.RequestID)
	return nil
}

// PublishCommissioningEvent implements commissioning.EventPublisher by
// forwarding progress to MQTT. Events are dropped while disconnected.
func (b *Bridge) PublishCommissioningEvent(ev commissioning.Event) {
	if !b.mqtt.IsConnected() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logError("failed to encode commissioning event", err)
		return
	}
	if err := b.mqtt.Publish(CommissioningTopic(b.stack), payload, 0, false); err != nil {
		b.logError("failed to publish commissioning event", err)
	}
}

// ─── Events ─────────────────────────────────────────────────────────────────

// handleMQTTMessage decodes an event and queues it for dispatch.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) != eventTopicParts || parts[1] != "event" {
		b.errors.Add(1)
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	var ev EventMessage
	if err := json.Unmarshal(payload, &ev); err != nil {
		b.errors.Add(1)
		b.logError("failed to decode event", fmt.Errorf("%w: %s: %w", ErrInvalidEvent, topic, err))
		return
	}
	if ev.Type == "" {
		ev.Type = parts[3]
	}

	b.eventsReceived.Add(1)
	b.lastEvent.Store(b.now().UnixNano())

	select {
	case b.events <- ev:
	default:
		b.errors.Add(1)
		b.logWarn("event queue full, dropping event",
			"type", ev.Type,
			"address", ev.Address,
			"queue_size", cap(b.events),
		)
	}
}

func (b *Bridge) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev := <-b.events:
			if err := b.HandleEvent(ev); err != nil {
				b.errors.Add(1)
				b.logError("failed to handle event", err)
			}
		}
	}
}

// HandleEvent validates one event and calls the matching handler method.
//
// Returns:
//   - error: ErrNoHandler, ErrUnknownEvent, or ErrInvalidEvent when a field
//     the event type requires is missing
func (b *Bridge) HandleEvent(ev EventMessage) error {
	b.handlerMu.RLock()
	h := b.handler
	b.handlerMu.RUnlock()
	if h == nil {
		return ErrNoHandler
	}

	switch ev.Type {
	case EventBeacon:
		if ev.UUID == uuid.Nil {
			return fmt.Errorf("%w: %s without uuid", ErrInvalidEvent, ev.Type)
		}
		result := h.OnDiscovery(mesh.Beacon{
			UUID:        ev.UUID,
			LinkAddress: ev.LinkAddress,
			Bearer:      ev.Bearer,
			Known:       ev.Known,
		})
		b.logDebug("beacon", "uuid", ev.UUID.String(), "link_address", ev.LinkAddress.String(), "result", result.String())

	case EventProvisioned:
		if err := requireUnicast(ev); err != nil {
			return err
		}
		h.OnProvisioned(ev.Address, ev.UUID)

	case EventProvisioningFailed:
		h.OnProvisioningFailed(ev.UUID, ev.Reason)

	case EventDCDData:
		if err := requireUnicast(ev); err != nil {
			return err
		}
		if len(ev.Data) == 0 {
			return fmt.Errorf("%w: %s without data", ErrInvalidEvent, ev.Type)
		}
		h.OnCompositionData(ev.Address, ev.Data)

	case EventDCDDataEnd:
		if err := requireUnicast(ev); err != nil {
			return err
		}
		h.OnCompositionEnd(ev.Address)

	case EventAppKeyStatus, EventBindingStatus, EventModelPubStatus, EventModelSubStatus,
		EventGATTProxyStatus, EventHeartbeatPubStatus:
		if err := requireUnicast(ev); err != nil {
			return err
		}
		statusHandler(h, ev.Type)(ev.Address, ev.Status)

	case EventNodeReset:
		h.Reset()

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	return nil
}

// statusHandler maps a status event type to its handler method.
func statusHandler(h EventHandler, eventType string) func(mesh.Address, mesh.Status) {
	switch eventType {
	case EventAppKeyStatus:
		return h.OnAppKeyResult
	case EventBindingStatus:
		return h.OnBindResult
	case EventModelPubStatus:
		return h.OnPublicationResult
	case EventModelSubStatus:
		return h.OnSubscriptionResult
	case EventGATTProxyStatus:
		return h.OnProxyResult
	default:
		return h.OnHeartbeatResult
	}
}

func requireUnicast(ev EventMessage) error {
	if !ev.Address.IsUnicast() {
		return fmt.Errorf("%w: %s with non-unicast address %s", ErrInvalidEvent, ev.Type, ev.Address)
	}
	return nil
}

// ─── Logging ────────────────────────────────────────────────────────────────

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
