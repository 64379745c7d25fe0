// Package mqtt provides the broker connection for the mesh commissioning
// service.
//
// This package manages:
//   - Connection to the Mosquitto broker with auto-reconnect
//   - Publishing with QoS acknowledgement and a payload size limit
//   - Tracked subscriptions that are restored after a reconnect
//   - A retained online/offline service status with Last Will
//
// # Architecture
//
// The mesh stack host (the process that owns the radio and the mesh
// keys) is reached over MQTT. The btmesh bridge publishes stack requests
// and consumes stack events through this client.
//
//	commissioning ↔ btmesh bridge ↔ MQTT Broker ↔ mesh stack host
//
// # Topics
//
//	graylogic/request/{stack}/{action}      requests to the stack host
//	graylogic/event/{stack}/{type}          events from the stack host
//	graylogic/health/{stack}                retained bridge health
//	graylogic/commissioning/{stack}         commissioning progress
//	graylogic/system/{client_id}/status     retained service status (LWT)
//
// # Ordering
//
// Messages are delivered to handlers one at a time in broker order.
// Composition data arrives as several dcd_data events and must be
// reassembled in sequence, so handlers must return quickly and never wait
// on a publish token from inside the callback.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllBridgeEvents("btmesh"), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
//
//	topic := mqtt.Topics{}.BridgeRequest("btmesh", "get_composition")
//	err = client.Publish(topic, []byte(`{"action":"get_composition"}`), 1, false)
//
// TLS should be enabled (broker.tls) whenever the broker is not local.
package mqtt
