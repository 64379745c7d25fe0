package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for a topic pattern. "+" and "#" wildcards
// are allowed. The subscription is tracked and restored after a reconnect.
//
// Handlers run one at a time in broker order and are wrapped with panic
// recovery; a returned error is logged.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or a wrapped
//     ErrSubscribeFailed
//
// Example:
//
//	err := client.Subscribe(mqtt.Topics{}.AllBridgeEvents("btmesh"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("%s: %s", topic, payload)
//	        return nil
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	var subErr error
	if !token.WaitTimeout(defaultPublishTimeout) {
		subErr = fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	} else if err := token.Error(); err != nil {
		subErr = fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	if subErr != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return subErr
	}

	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}
