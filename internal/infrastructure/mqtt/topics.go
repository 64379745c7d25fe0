package mqtt

import "fmt"

// TopicPrefix is the base of every Gray Logic topic.
//
// Bridge topics use the flat scheme graylogic/{category}/{stack}/{suffix}.
const TopicPrefix = "graylogic"

// Topics provides builders for the topics this service uses.
//
//	topics := mqtt.Topics{}
//	topics.BridgeRequest("btmesh", "bind_model")
//	// Returns: "graylogic/request/btmesh/bind_model"
type Topics struct{}

// BridgeRequest returns the topic for one request action to a stack bridge.
//
// Example: graylogic/request/btmesh/add_appkey
func (Topics) BridgeRequest(stack, action string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, stack, action)
}

// BridgeEvent returns the topic for one event type from a stack host.
//
// Example: graylogic/event/btmesh/beacon
func (Topics) BridgeEvent(stack, eventType string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, stack, eventType)
}

// BridgeHealth returns the retained bridge health topic.
//
// Example: graylogic/health/btmesh
func (Topics) BridgeHealth(stack string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, stack)
}

// Commissioning returns the topic commissioning progress is published on.
//
// Example: graylogic/commissioning/btmesh
func (Topics) Commissioning(stack string) string {
	return fmt.Sprintf("%s/commissioning/%s", TopicPrefix, stack)
}

// ServiceStatus returns the retained online/offline topic of one client.
//
// Example: graylogic/system/graylogic-mesh/status
func (Topics) ServiceStatus(clientID string) string {
	return fmt.Sprintf("%s/system/%s/status", TopicPrefix, clientID)
}

// AllBridgeEvents returns a pattern matching every event of one stack.
//
// Pattern: graylogic/event/btmesh/+
func (Topics) AllBridgeEvents(stack string) string {
	return fmt.Sprintf("%s/event/%s/+", TopicPrefix, stack)
}

// AllBridgeRequests returns a pattern matching every request to one stack.
//
// Pattern: graylogic/request/btmesh/+
func (Topics) AllBridgeRequests(stack string) string {
	return fmt.Sprintf("%s/request/%s/+", TopicPrefix, stack)
}
