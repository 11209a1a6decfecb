package coordinator

import (
	"context"
	"fmt"
	"sort"

	"github.com/wattbridge/ecoflow-bridge/internal/device"
)

// ControlClient is the cloud API surface the coordinators depend on.
// *ecoflow.Client satisfies it; tests substitute fakes.
type ControlClient interface {
	DeviceQuota(ctx context.Context, sn string) (device.State, error)

	SetACChargingPower(ctx context.Context, sn string, watts int, pause bool) error
	SetMaxChargeLevel(ctx context.Context, sn string, percent int) error
	SetMinDischargeLevel(ctx context.Context, sn string, percent int) error
	SetACOutput(ctx context.Context, sn string, enabled bool) error
	SetDCOutput(ctx context.Context, sn string, enabled bool) error
	Set12VDCOutput(ctx context.Context, sn string, enabled bool) error
	SetBeep(ctx context.Context, sn string, enabled bool) error
	SetXBoost(ctx context.Context, sn string, enabled bool) error
	SetACStandbyTime(ctx context.Context, sn string, minutes int) error
	SetDCStandbyTime(ctx context.Context, sn string, minutes int) error
	SetLCDStandbyTime(ctx context.Context, sn string, seconds int) error
}

// CommandRequest is a device command by registry name.
//
// Which arguments are required depends on the command: toggles need
// Enabled, numeric setters need Value, and set_ac_charging_power
// additionally honors Pause.
type CommandRequest struct {
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled,omitempty"`
	Value   *int   `json:"value,omitempty"`
	Pause   bool   `json:"pause,omitempty"`
}

// commandFunc executes one registry command against the cloud client.
type commandFunc func(ctx context.Context, client ControlClient, sn string, req CommandRequest) error

// commandRegistry maps command names to their typed executors. Dispatch
// is by explicit table, never by reflected method lookup, so an
// unknown name can only ever produce ErrUnknownCommand.
var commandRegistry = map[string]commandFunc{
	"set_ac_charging_power": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		value, err := requireValue(req)
		if err != nil {
			return err
		}
		return c.SetACChargingPower(ctx, sn, value, req.Pause)
	},
	"set_max_charge_level": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		value, err := requireValue(req)
		if err != nil {
			return err
		}
		return c.SetMaxChargeLevel(ctx, sn, value)
	},
	"set_min_discharge_level": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		value, err := requireValue(req)
		if err != nil {
			return err
		}
		return c.SetMinDischargeLevel(ctx, sn, value)
	},
	"set_ac_output": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		enabled, err := requireEnabled(req)
		if err != nil {
			return err
		}
		return c.SetACOutput(ctx, sn, enabled)
	},
	"set_dc_output": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		enabled, err := requireEnabled(req)
		if err != nil {
			return err
		}
		return c.SetDCOutput(ctx, sn, enabled)
	},
	"set_12v_dc_output": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		enabled, err := requireEnabled(req)
		if err != nil {
			return err
		}
		return c.Set12VDCOutput(ctx, sn, enabled)
	},
	"set_beep": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		enabled, err := requireEnabled(req)
		if err != nil {
			return err
		}
		return c.SetBeep(ctx, sn, enabled)
	},
	"set_x_boost": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		enabled, err := requireEnabled(req)
		if err != nil {
			return err
		}
		return c.SetXBoost(ctx, sn, enabled)
	},
	"set_ac_standby_time": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		value, err := requireValue(req)
		if err != nil {
			return err
		}
		return c.SetACStandbyTime(ctx, sn, value)
	},
	"set_dc_standby_time": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		value, err := requireValue(req)
		if err != nil {
			return err
		}
		return c.SetDCStandbyTime(ctx, sn, value)
	},
	"set_lcd_standby_time": func(ctx context.Context, c ControlClient, sn string, req CommandRequest) error {
		value, err := requireValue(req)
		if err != nil {
			return err
		}
		return c.SetLCDStandbyTime(ctx, sn, value)
	},
}

// CommandNames returns the registered command names, sorted.
func CommandNames() []string {
	names := make([]string, 0, len(commandRegistry))
	for name := range commandRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func requireEnabled(req CommandRequest) (bool, error) {
	if req.Enabled == nil {
		return false, fmt.Errorf("%w: %s requires \"enabled\"", ErrInvalidArgument, req.Name)
	}
	return *req.Enabled, nil
}

func requireValue(req CommandRequest) (int, error) {
	if req.Value == nil {
		return 0, fmt.Errorf("%w: %s requires \"value\"", ErrInvalidArgument, req.Name)
	}
	return *req.Value, nil
}
