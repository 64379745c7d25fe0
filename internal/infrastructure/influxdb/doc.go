// Package influxdb writes commissioning metrics to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and a health check.
//
// # Measurements
//
//	mesh_commissioning  tags: outcome, device_type
//	                    fields: duration_ms, retries, elements, models
//	mesh_registry       tags: state
//	                    fields: pending
//
// One mesh_commissioning point is written per journaled outcome (success,
// aborted, provisioning_failed, appkey_failed). mesh_registry tracks devices discovered but not yet
// commissioned.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    // Metrics are optional; run without them.
//	}
//	defer client.Close()
//
//	ctrl, err := commissioning.NewController(commissioning.Options{
//	    Metrics: client,
//	    ...
//	})
//
// # Error Handling
//
// Writes never return errors. Batch failures are delivered asynchronously
// to the SetOnError callback.
package influxdb
