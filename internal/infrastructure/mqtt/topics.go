package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
//
// Devices publish readings on smartpot/telemetry/{serial}. The core owns
// smartpot/alerts/* and smartpot/system/*.
const (
	// TopicPrefix is the base for all smartpot topics.
	TopicPrefix = "smartpot"

	// TopicPrefixTelemetry is the base for device readings.
	TopicPrefixTelemetry = "smartpot/telemetry"

	// TopicPrefixAlerts is the base for out-of-range alerts.
	TopicPrefixAlerts = "smartpot/alerts"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "smartpot/system"
)

// Topics provides builders for smartpot MQTT topics.
//
//	topics := mqtt.Topics{}
//	topic := topics.Telemetry("SP-0042")
//	// Returns: "smartpot/telemetry/SP-0042"
type Topics struct{}

// Telemetry returns the topic a smart pot publishes its readings on.
//
// Example: smartpot/telemetry/SP-0042
func (Topics) Telemetry(serial string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixTelemetry, serial)
}

// ParseTelemetry extracts the serial from a telemetry topic. Reports false
// for any other topic, including wildcard patterns and nested levels.
func (Topics) ParseTelemetry(topic string) (string, bool) {
	serial, ok := strings.CutPrefix(topic, TopicPrefixTelemetry+"/")
	if !ok || serial == "" || strings.ContainsAny(serial, "/+#") {
		return "", false
	}
	return serial, true
}

// SystemStatus returns the system status topic, used for the
// online/offline last will.
//
// Example: smartpot/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTelemetry returns a pattern matching every pot's readings.
//
// Pattern: smartpot/telemetry/+
func (Topics) AllTelemetry() string {
	return fmt.Sprintf("%s/+", TopicPrefixTelemetry)
}

// Alert returns the topic alerts for a flower are published on.
//
// Example: smartpot/alerts/flw-1
func (Topics) Alert(flowerID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixAlerts, flowerID)
}
