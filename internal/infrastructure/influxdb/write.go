package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/wattbridge/ecoflow-bridge/internal/device"
)

// WriteSnapshot records the numeric quota parameters of a device
// snapshot as one point in the device_quota measurement.
//
// Non-numeric parameters (strings, nested objects) are skipped: Influx
// fields hold scalars and the interesting quota values, SOC, watts and
// temperatures, are all numbers. The write is non-blocking; data is
// batched and sent asynchronously.
//
// Parameters:
//   - snapshot: Coordinator snapshot to record
func (c *Client) WriteSnapshot(snapshot device.Snapshot) {
	if !c.IsConnected() {
		return
	}

	fields := numericFields(snapshot.State)
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"device_quota",
		map[string]string{
			"sn":     snapshot.SN,
			"source": snapshot.Source,
		},
		fields,
		snapshot.UpdatedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandResult records a command execution outcome for auditing
// command latency and failure rates over time.
//
// Parameters:
//   - sn: Device serial number
//   - command: Registry command name
//   - success: Whether the cloud accepted the command
func (c *Client) WriteCommandResult(sn, command string, success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_commands",
		map[string]string{
			"sn":      sn,
			"command": command,
		},
		map[string]interface{}{
			"success": success,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// numericFields extracts the scalar numeric parameters from a state map.
func numericFields(state device.State) map[string]interface{} {
	fields := make(map[string]interface{}, len(state))
	for key, value := range state {
		switch v := value.(type) {
		case float64:
			fields[key] = v
		case float32:
			fields[key] = float64(v)
		case int:
			fields[key] = float64(v)
		case int64:
			fields[key] = float64(v)
		case bool:
			fields[key] = v
		}
	}
	return fields
}
