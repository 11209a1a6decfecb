package influxdb

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wattbridge/ecoflow-bridge/internal/device"
)

func TestNumericFields(t *testing.T) {
	state := device.State{
		"bmsMaster.soc":   82.5,
		"pd.wattsOutSum":  340,
		"inv.chargerType": "ac",
		"pd.beepState":    true,
		"nested":          map[string]any{"x": 1},
	}

	got := numericFields(state)
	want := map[string]interface{}{
		"bmsMaster.soc":  82.5,
		"pd.wattsOutSum": float64(340),
		"pd.beepState":   true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("numericFields() mismatch (-want +got):\n%s", diff)
	}
}

func TestNumericFields_Empty(t *testing.T) {
	if got := numericFields(nil); len(got) != 0 {
		t.Errorf("numericFields(nil) = %v, want empty", got)
	}
	if got := numericFields(device.State{"s": "only strings"}); len(got) != 0 {
		t.Errorf("numericFields(strings only) = %v, want empty", got)
	}
}

func TestWriteSnapshot_Disconnected(t *testing.T) {
	// A closed client must drop writes silently instead of panicking.
	c := &Client{}
	c.WriteSnapshot(device.Snapshot{SN: "SN123", State: device.State{"soc": 50}})
	c.WriteCommandResult("SN123", "set_beep", true)
}
