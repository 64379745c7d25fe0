package btmesh

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// MQTT message types exchanged between the commissioning service and the
// mesh stack host.

// Request actions published by the bridge.
const (
	ActionCreateProvisioningSession = "create_provisioning_session"
	ActionProvisionAdvDevice        = "provision_adv_device"
	ActionAddAppKey                 = "add_appkey"
	ActionGetComposition            = "get_composition"
	ActionBindModel                 = "bind_model"
	ActionSetPublication            = "set_publication"
	ActionAddSubscription           = "add_subscription"
	ActionSetProxy                  = "set_proxy"
	ActionSetHeartbeatPublication   = "set_heartbeat_publication"
	ActionDeleteProvisioningEntry   = "delete_provisioning_entry"
)

// Event types reported by the stack host.
const (
	EventBeacon             = "beacon"
	EventProvisioned        = "provisioned"
	EventProvisioningFailed = "provisioning_failed"
	EventAppKeyStatus       = "appkey_status"
	EventDCDData            = "dcd_data"
	EventDCDDataEnd         = "dcd_data_end"
	EventBindingStatus      = "binding_status"
	EventModelPubStatus     = "model_pub_status"
	EventModelSubStatus     = "model_sub_status"
	EventGATTProxyStatus    = "gatt_proxy_status"
	EventHeartbeatPubStatus = "heartbeat_pub_status"
	EventNodeReset          = "node_reset"
)

// RequestMessage is sent from the service to the stack host.
// Topic: graylogic/request/{stack}/{action}
// QoS: 1, Retained: No
type RequestMessage struct {
	// RequestID uniquely identifies this request for log correlation.
	RequestID string `json:"request_id"`

	// Timestamp is when the request was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Action is the requested stack operation.
	Action string `json:"action"`

	// Parameters holds the action-specific payload.
	Parameters any `json:"parameters,omitempty"`
}

// DeviceParams addresses an unprovisioned device by UUID.
type DeviceParams struct {
	UUID uuid.UUID `json:"uuid"`
}

// AppKeyParams is the payload of add_appkey.
type AppKeyParams struct {
	Address     mesh.Address `json:"address"`
	AppKeyIndex uint16       `json:"appkey_index"`
	NetKeyIndex uint16       `json:"netkey_index"`
}

// CompositionParams is the payload of get_composition.
type CompositionParams struct {
	Address mesh.Address `json:"address"`
	Page    uint8        `json:"page"`
}

// ProxyParams is the payload of set_proxy.
type ProxyParams struct {
	Address mesh.Address `json:"address"`
	Enabled bool         `json:"enabled"`
}

// EventMessage is sent from the stack host to the service.
// Topic: graylogic/event/{stack}/{type}
//
// Only the fields relevant to Type are set. Data carries composition
// fragments and is base64 encoded on the wire.
type EventMessage struct {
	Type        string           `json:"type"`
	Timestamp   time.Time        `json:"timestamp"`
	UUID        uuid.UUID        `json:"uuid,omitempty"`
	LinkAddress mesh.LinkAddress `json:"link_address,omitempty"`
	Bearer      mesh.Bearer      `json:"bearer,omitempty"`
	Known       bool             `json:"known,omitempty"`
	Address     mesh.Address     `json:"address,omitempty"`
	Status      mesh.Status      `json:"status,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Data        []byte           `json:"data,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the broker connection is up.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge runs without a broker connection.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline is the Last Will status.
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge status.
// Topic: graylogic/health/{stack}
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Statistics contains request and event counters.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// DevicesPending is the number of live registry entries.
	DevicesPending int `json:"devices_pending"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	RequestsSent   uint64     `json:"requests_sent"`
	EventsReceived uint64     `json:"events_received"`
	Errors         uint64     `json:"errors"`
	LastEvent      *time.Time `json:"last_event,omitempty"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats BridgeStatistics, pending int, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:         bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        version,
		UptimeSeconds:  int64(time.Since(startTime).Seconds()),
		Statistics:     &stats,
		DevicesPending: pending,
	}
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topic helpers

// DefaultStack is the default stack segment of bridge topics.
const DefaultStack = "btmesh"

var topics = mqtt.Topics{}

// RequestTopic returns the MQTT topic for one request action.
// Format: graylogic/request/{stack}/{action}
func RequestTopic(stack, action string) string {
	return topics.BridgeRequest(stack, action)
}

// EventTopic returns the MQTT topic for one event type.
// Format: graylogic/event/{stack}/{type}
func EventTopic(stack, eventType string) string {
	return topics.BridgeEvent(stack, eventType)
}

// EventSubscribeTopic returns the subscription pattern for all stack events.
func EventSubscribeTopic(stack string) string {
	return topics.AllBridgeEvents(stack)
}

// HealthTopic returns the MQTT topic for bridge health.
func HealthTopic(stack string) string {
	return topics.BridgeHealth(stack)
}

// CommissioningTopic returns the MQTT topic commissioning progress is
// published on.
func CommissioningTopic(stack string) string {
	return topics.Commissioning(stack)
}
