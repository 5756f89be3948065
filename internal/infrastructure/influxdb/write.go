package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementName is the InfluxDB measurement all sensor readings land in.
const measurementName = "sensor_readings"

// WriteReading archives one accepted sensor reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Tags carry the identity (low cardinality), fields carry the values.
//
// Parameters:
//   - deviceKey: Stable device key (e.g. "radio:TempHum1:5")
//   - model: Device model string
//   - channel: Ingestion channel ("tcp", "radio", "system")
//   - fields: Field name to numeric/boolean/string value
//   - timestamp: When the reading was received
//
// Example:
//
//	client.WriteReading("tcp:UnoR4_WiFi_Sensor:workshop", "UnoR4_WiFi_Sensor",
//	    "tcp", map[string]interface{}{"temperature_C": 21.5}, time.Now())
func (c *Client) WriteReading(deviceKey, model, channel string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		measurementName,
		map[string]string{
			"device":  deviceKey,
			"model":   model,
			"channel": channel,
		},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit WriteReading.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
