package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/wattbridge/ecoflow-bridge/internal/device"
)

// quotaEnvelope is the push message wrapper. Devices publish either
// {"params": {...}} with metadata alongside, or a bare parameter map.
type quotaEnvelope struct {
	Params map[string]any `json:"params"`
}

// unwrapQuota extracts the parameter map from a quota push payload.
// The "params" envelope is unwrapped when present; otherwise the whole
// object is treated as the parameter map.
func unwrapQuota(payload []byte) (device.State, error) {
	var env quotaEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && len(env.Params) > 0 {
		return device.State(env.Params), nil
	}

	var flat map[string]any
	if err := json.Unmarshal(payload, &flat); err != nil {
		return nil, fmt.Errorf("decoding quota payload: %w", err)
	}
	return device.State(flat), nil
}

// parseStatus extracts the online flag from a status push payload.
//
// Returns:
//   - int: 1 when online, 0 when offline
//   - error: If the payload has no recognizable status field
func parseStatus(payload []byte) (int, error) {
	var env struct {
		Params struct {
			Status *int `json:"status"`
		} `json:"params"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return 0, fmt.Errorf("decoding status payload: %w", err)
	}
	if env.Params.Status == nil {
		return 0, fmt.Errorf("status payload missing params.status")
	}
	return *env.Params.Status, nil
}

// setReply is the command acknowledgment a device publishes after a set.
type setReply struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Ack *int `json:"ack"`
	} `json:"data"`
}

// parseSetReply decodes a command acknowledgment. The returned string is
// empty on success, otherwise the failure code/message for logging.
func parseSetReply(payload []byte) (string, error) {
	var reply setReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return "", fmt.Errorf("decoding set_reply payload: %w", err)
	}

	switch code := reply.Code.(type) {
	case nil:
		return "", nil
	case string:
		if code == "0" || code == "200" {
			return "", nil
		}
		return fmt.Sprintf("code %s: %s", code, reply.Message), nil
	case float64:
		if code == 0 || code == 200 {
			return "", nil
		}
		return fmt.Sprintf("code %.0f: %s", code, reply.Message), nil
	default:
		return fmt.Sprintf("code %v: %s", code, reply.Message), nil
	}
}
