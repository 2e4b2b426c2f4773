package telemetry

import (
	"fmt"
	"strconv"

	"github.com/nerrad567/smartpot-core/internal/plant"
)

// BatteryThreshold is the lowest battery percentage that is not an alert.
const BatteryThreshold = 30

// Evaluate applies the range policy for typeOfData to a numeric reading.
//
// It returns nil when no policy applies: water readings, unknown types, or
// a profile without the relevant range. Battery uses BatteryThreshold and
// ignores the profile.
func Evaluate(typeOfData string, value float64, profile *plant.Profile) *Evaluation {
	switch typeOfData {
	case TypeSoil:
		return checkRange(value, rangeOf(profile, func(p *plant.Profile) *plant.Range { return p.Humidity }),
			"Soil humidity out of range! Measured %s%%, expected between %s%% - %s%%")
	case TypeTemperature:
		return checkRange(value, rangeOf(profile, func(p *plant.Profile) *plant.Range { return p.Temperature }),
			"Temperature out of range! Measured %s°C, expected between %s°C - %s°C")
	case TypeLight:
		return checkRange(value, rangeOf(profile, func(p *plant.Profile) *plant.Range { return p.Light }),
			"Light intensity out of range! Measured %slux, expected between %slux - %slux")
	case TypeBattery:
		if value < BatteryThreshold {
			return &Evaluation{
				OutOfRange: true,
				Message: fmt.Sprintf("Battery low! Measured %s%%, should be at least %d%%",
					formatNumber(value), BatteryThreshold),
			}
		}
		return &Evaluation{}
	default:
		return nil
	}
}

func rangeOf(profile *plant.Profile, pick func(*plant.Profile) *plant.Range) *plant.Range {
	if profile == nil {
		return nil
	}
	return pick(profile)
}

func checkRange(value float64, r *plant.Range, format string) *Evaluation {
	if r == nil {
		return nil
	}
	if r.Contains(value) {
		return &Evaluation{}
	}
	return &Evaluation{
		OutOfRange: true,
		Message:    fmt.Sprintf(format, formatNumber(value), formatNumber(r.Min), formatNumber(r.Max)),
	}
}

// formatNumber prints the shortest exact form: 25 not 25.000000.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
