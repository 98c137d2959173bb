package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceValue writes a single decoded sensor reading to InfluxDB.
//
// This is the primary method for recording RF telemetry. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "oregon-0710")
//   - deviceClass: Device class ("sensor", "energy", ...)
//   - channel: The output channel name (e.g., "temperature", "humidity")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteDeviceValue("oregon-0710", "sensor", "temperature", 21.5)
//	client.WriteDeviceValue("cm113-a2c2", "energy", "current_a", 3.2)
func (c *Client) WriteDeviceValue(deviceID, deviceClass, channel string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"rf_telemetry",
		map[string]string{
			"device_id": deviceID,
			"class":     deviceClass,
			"channel":   channel,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBridgeStats writes bridge-level serial link counters.
//
// Called periodically alongside health publishing so link quality
// can be graphed over time.
//
// Parameters:
//   - device: Serial device path, used as the series tag
//   - linesRx: Total lines received since start
//   - linesTx: Total lines transmitted since start
//   - errors: Total decode and transmit errors since start
func (c *Client) WriteBridgeStats(device string, linesRx, linesTx, errors uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_stats",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"lines_rx": linesRx,
			"lines_tx": linesTx,
			"errors":   errors,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "bridge-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
