package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the commissioning service.
const (
	measurementCommissioning = "mesh_commissioning"
	measurementRegistry      = "mesh_registry"
)

// WriteCommissioningMetric records the outcome of one commissioning run.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - outcome: A commissioning journal outcome, e.g. "success"
//   - deviceType: The device type resolved from composition ("" if unknown)
//   - duration: Time from provisioning start to the terminal step
//   - retries: Retries consumed from the step budget
//   - elements, models: Counts decoded from composition data
func (c *Client) WriteCommissioningMetric(outcome, deviceType string, duration time.Duration, retries, elements, models int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(commissioningPoint(outcome, deviceType, duration, retries, elements, models, time.Now()))
}

// WriteRegistryMetric records the number of devices awaiting commissioning.
func (c *Client) WriteRegistryMetric(pending int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(registryPoint(pending, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("mesh_bridge",
//	    map[string]string{"stack": "btmesh"},
//	    map[string]interface{}{"events_received": 1200})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func commissioningPoint(outcome, deviceType string, duration time.Duration, retries, elements, models int, ts time.Time) *write.Point {
	if deviceType == "" {
		deviceType = "unknown"
	}
	return write.NewPoint(
		measurementCommissioning,
		map[string]string{
			"outcome":     outcome,
			"device_type": deviceType,
		},
		map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
			"retries":     retries,
			"elements":    elements,
			"models":      models,
		},
		ts,
	)
}

// registryPoint carries a state tag; the line protocol encoder emits a
// stray comma for a tagless point.
func registryPoint(pending int, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementRegistry,
		map[string]string{"state": "unprovisioned"},
		map[string]interface{}{"pending": pending},
		ts,
	)
}
