// Package telemetry ingests smart pot readings.
//
// A device reports {smartpot_serial, typeOfData, value} over MQTT or HTTP.
// Ingest validates the sample and resolves the pot, its bound flower and
// its household. The reading is stored under the flower, not the pot, so
// history follows the plant across pots. The pipeline then checks the range
// policy, pushes the reading to the flower's live subscribers and, when out
// of range, alerts the household.
//
// Five reading types map onto five stored metrics:
//
//	soil        -> humidity
//	water       -> water (qualitative, lower-cased text)
//	temperature -> temperature
//	light       -> light
//	battery     -> battery
//
// Range policy:
//
//	soil, temperature, light  profile min/max; no range, no verdict
//	battery                   below 30 is an alert
//	water                     no policy
package telemetry
