// Package influxdb streams device telemetry to InfluxDB v2.
//
// Every coordinator snapshot becomes a point in the device_quota
// measurement, tagged with serial number and source, carrying the
// numeric quota parameters as fields. Command outcomes land in
// device_commands. Writes are batched and non-blocking; the sink is
// optional and the bridge runs fine without it.
package influxdb
