// Package influxdb mirrors smart pot readings into InfluxDB.
//
// SQLite stays the system of record for measurements; the mirror exists
// for dashboards and long-range queries. Points are batched and written
// in the background, so a slow or absent server never delays ingestion.
//
// Each reading becomes one point in smartpot_readings:
//
//	smartpot_readings,flower_id=<id>,serial=<serial>,metric=humidity value=41.5 <ts>
//	smartpot_readings,flower_id=<id>,serial=<serial>,metric=water state="low" <ts>
package influxdb
