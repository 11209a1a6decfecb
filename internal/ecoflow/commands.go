package ecoflow

import "context"

// Delta Pro 3 command codes.
// Documentation: https://developer-eu.ecoflow.com/us/document/deltaPro3
const (
	CmdSetACChargeSpeed = "WN511_SET_AC_CHARGE_SPEED"
	CmdSetChargeLevel   = "WN511_SET_CHARGE_LEVEL"
	CmdSetACOut         = "WN511_SET_AC_OUT"
	CmdSetDCOut         = "WN511_SET_DC_OUT"
	CmdSet12VDCOut      = "WN511_SET_12V_DC_OUT"
	CmdSetACStandbyTime = "WN511_SET_AC_STANDBY_TIME"
	CmdSetDCStandbyTime = "WN511_SET_DC_STANDBY_TIME"
	CmdSetLCDStandby    = "WN511_SET_LCD_STANDBY_TIME"
	CmdSetBeep          = "WN511_SET_BEEP"
	CmdSetXBoost        = "WN511_SET_X_BOOST"
)

// Delta Pro 3 parameter bounds. Out-of-range values are clamped rather
// than rejected so the device never sees a value it cannot accept.
const (
	MinACChargePower = 200
	MaxACChargePower = 3000
	MinMaxChargeSOC  = 50
	MaxMaxChargeSOC  = 100
	MinMinDischarge  = 0
	MaxMinDischarge  = 30
)

// SetACChargingPower sets the AC charging power in watts, clamped to
// 200-3000 W. When pause is true the device pauses charging regardless
// of the power value.
func (c *Client) SetACChargingPower(ctx context.Context, sn string, watts int, pause bool) error {
	pauseFlag := 0
	if pause {
		pauseFlag = 1
	}
	return c.SetQuota(ctx, sn, CmdSetACChargeSpeed, map[string]any{
		"chgPauseFlag": pauseFlag,
		"acChgPower":   clamp(watts, MinACChargePower, MaxACChargePower),
	})
}

// SetMaxChargeLevel sets the charge limit as a percentage, clamped to 50-100.
func (c *Client) SetMaxChargeLevel(ctx context.Context, sn string, percent int) error {
	return c.SetQuota(ctx, sn, CmdSetChargeLevel, map[string]any{
		"maxChgSoc": clamp(percent, MinMaxChargeSOC, MaxMaxChargeSOC),
	})
}

// SetMinDischargeLevel sets the discharge floor as a percentage, clamped to 0-30.
func (c *Client) SetMinDischargeLevel(ctx context.Context, sn string, percent int) error {
	return c.SetQuota(ctx, sn, CmdSetChargeLevel, map[string]any{
		"minDsgSoc": clamp(percent, MinMinDischarge, MaxMinDischarge),
	})
}

// SetACOutput enables or disables the AC inverter output.
func (c *Client) SetACOutput(ctx context.Context, sn string, enabled bool) error {
	return c.SetQuota(ctx, sn, CmdSetACOut, map[string]any{
		"acOutState": boolState(enabled),
	})
}

// SetDCOutput enables or disables the DC output.
func (c *Client) SetDCOutput(ctx context.Context, sn string, enabled bool) error {
	return c.SetQuota(ctx, sn, CmdSetDCOut, map[string]any{
		"dcOutState": boolState(enabled),
	})
}

// Set12VDCOutput enables or disables the 12V DC output.
func (c *Client) Set12VDCOutput(ctx context.Context, sn string, enabled bool) error {
	return c.SetQuota(ctx, sn, CmdSet12VDCOut, map[string]any{
		"dc12vOutState": boolState(enabled),
	})
}

// SetBeep enables or disables the device beeper.
func (c *Client) SetBeep(ctx context.Context, sn string, enabled bool) error {
	return c.SetQuota(ctx, sn, CmdSetBeep, map[string]any{
		"beepState": boolState(enabled),
	})
}

// SetXBoost enables or disables X-Boost overload handling.
func (c *Client) SetXBoost(ctx context.Context, sn string, enabled bool) error {
	return c.SetQuota(ctx, sn, CmdSetXBoost, map[string]any{
		"xBoostState": boolState(enabled),
	})
}

// SetACStandbyTime sets the AC auto-off timeout in minutes (0 = never off).
func (c *Client) SetACStandbyTime(ctx context.Context, sn string, minutes int) error {
	return c.SetQuota(ctx, sn, CmdSetACStandbyTime, map[string]any{
		"acStandbyTime": nonNegative(minutes),
	})
}

// SetDCStandbyTime sets the DC auto-off timeout in minutes (0 = never off).
func (c *Client) SetDCStandbyTime(ctx context.Context, sn string, minutes int) error {
	return c.SetQuota(ctx, sn, CmdSetDCStandbyTime, map[string]any{
		"dcStandbyTime": nonNegative(minutes),
	})
}

// SetLCDStandbyTime sets the screen auto-off timeout in seconds (0 = never off).
func (c *Client) SetLCDStandbyTime(ctx context.Context, sn string, seconds int) error {
	return c.SetQuota(ctx, sn, CmdSetLCDStandby, map[string]any{
		"lcdOffTime": nonNegative(seconds),
	})
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func boolState(enabled bool) int {
	if enabled {
		return 1
	}
	return 0
}

func nonNegative(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
