package telemetry

import "time"

// Types of data a smart pot reports.
const (
	TypeSoil        = "soil"
	TypeWater       = "water"
	TypeTemperature = "temperature"
	TypeLight       = "light"
	TypeBattery     = "battery"
)

// Stored metric names. Soil readings are stored as humidity.
const (
	MetricBattery     = "battery"
	MetricHumidity    = "humidity"
	MetricLight       = "light"
	MetricTemperature = "temperature"
	MetricWater       = "water"
)

// Metrics lists every stored metric in snapshot order.
var Metrics = []string{MetricBattery, MetricHumidity, MetricLight, MetricTemperature, MetricWater}

// MetricFor returns the stored metric for a type of data, accepting stored
// metric names as well. Reports false for unknown names.
func MetricFor(name string) (string, bool) {
	switch name {
	case TypeSoil, MetricHumidity:
		return MetricHumidity, true
	case TypeWater, TypeTemperature, TypeLight, TypeBattery:
		return name, true
	}
	return "", false
}

// Sample is one reading as sent by a device.
//
// After Validate, Value holds a float64 for numeric types and a lower-case
// string for water.
type Sample struct {
	SmartPotSerial string `json:"smartpot_serial" validate:"required"`
	TypeOfData     string `json:"typeOfData" validate:"required,oneof=soil water temperature light battery"`
	Value          any    `json:"value"`
}

// Measurement is a stored reading, attributed to the flower the pot was
// bound to when it arrived.
type Measurement struct {
	ID        string    `json:"id"`
	FlowerID  string    `json:"flower_id"`
	Type      string    `json:"type"`
	Value     any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Evaluation is the range policy verdict for a numeric reading.
type Evaluation struct {
	OutOfRange bool   `json:"out_of_range"`
	Message    string `json:"message,omitempty"`
}

// HistoryQuery selects stored measurements. Zero From/To leave that side
// of the window open; an empty Metric selects every metric.
type HistoryQuery struct {
	Metric string
	From   time.Time
	To     time.Time
	Limit  int
}
