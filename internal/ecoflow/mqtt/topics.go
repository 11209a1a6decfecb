package mqtt

import (
	"fmt"
	"strings"
)

// Topic kinds published under /open/{certificateAccount}/{sn}/.
const (
	KindQuota    = "quota"
	KindStatus   = "status"
	KindSet      = "set"
	KindSetReply = "set_reply"
)

// Topics builds the vendor topic hierarchy for one certificate account.
//
// All device traffic lives under /open/{certificateAccount}/{sn}/:
//   - quota: incremental state updates pushed by the device
//   - status: online/offline transitions
//   - set: command channel (bridge publishes)
//   - set_reply: command acknowledgments (device publishes)
type Topics struct {
	// Account is the certificateAccount issued by the cloud.
	Account string
}

// Quota returns the state update topic for a device.
func (t Topics) Quota(sn string) string {
	return t.device(sn, KindQuota)
}

// Status returns the online/offline topic for a device.
func (t Topics) Status(sn string) string {
	return t.device(sn, KindStatus)
}

// Set returns the command topic for a device.
func (t Topics) Set(sn string) string {
	return t.device(sn, KindSet)
}

// SetReply returns the command acknowledgment topic for a device.
func (t Topics) SetReply(sn string) string {
	return t.device(sn, KindSetReply)
}

func (t Topics) device(sn, kind string) string {
	return fmt.Sprintf("/open/%s/%s/%s", t.Account, sn, kind)
}

// ParseTopic extracts the serial number and kind from a device topic.
//
// Returns:
//   - string: Device serial number
//   - string: Topic kind (quota, status, set, set_reply)
//   - error: ErrInvalidTopic if the topic does not match the hierarchy
func ParseTopic(topic string) (string, string, error) {
	parts := strings.Split(strings.TrimPrefix(topic, "/"), "/")
	if len(parts) != 4 || parts[0] != "open" || parts[2] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return parts[2], parts[3], nil
}
