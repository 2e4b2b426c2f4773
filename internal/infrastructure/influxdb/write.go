package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementReadings is the InfluxDB measurement holding pot readings.
const MeasurementReadings = "smartpot_readings"

// WriteSample records one reading, tagged by flower, pot serial and metric.
//
// Numeric values go to the "value" field and text values (water level) to
// "state", so each field keeps a single type. Other value types are
// dropped.
func (c *Client) WriteSample(flowerID, serial, metric string, value any, at time.Time) {
	fields := make(map[string]any, 1)
	switch v := value.(type) {
	case float64:
		fields["value"] = v
	case string:
		fields["state"] = v
	default:
		return
	}

	c.WritePoint(MeasurementReadings, map[string]string{
		"flower_id": flowerID,
		"serial":    serial,
		"metric":    metric,
	}, fields, at)
}

// WritePoint queues a point. A zero at means now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
