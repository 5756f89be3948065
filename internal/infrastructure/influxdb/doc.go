// Package influxdb provides optional time-series archiving of sensor readings.
//
// Home Assistant keeps its own short-term history; this archiver exists for
// long-term retention and ad-hoc queries outside HA. All accepted readings
// land in a single "sensor_readings" measurement tagged by device key,
// model, and ingestion channel.
//
// Writes are batched and non-blocking, so a slow or absent InfluxDB server
// never backs up the ingestion pipeline. When influxdb.enabled is false,
// Connect returns ErrDisabled and the bridge simply skips archiving.
package influxdb
