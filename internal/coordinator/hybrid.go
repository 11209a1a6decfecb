package coordinator

import (
	"github.com/wattbridge/ecoflow-bridge/internal/device"
	"github.com/wattbridge/ecoflow-bridge/internal/ecoflow/mqtt"
)

// MQTTSource is the push-broker surface the hybrid coordinator needs.
// *mqtt.Client satisfies it.
type MQTTSource interface {
	SubscribeDevice(sn string, onQuota mqtt.QuotaHandler, onStatus mqtt.StatusHandler) error
	IsConnected() bool
}

// Hybrid combines REST polling with broker push updates.
//
// REST remains the authoritative full-state source and its timer runs
// unconditionally; push updates accumulate in an overlay that wins on
// key conflict. When a poll fails, the accumulated push data keeps the
// device readable instead of going unavailable. Before polling a device
// that has been push-silent for a full interval, the coordinator sends
// a wake fetch so sleeping hardware answers the real read.
type Hybrid struct {
	*Coordinator
}

// NewHybrid creates a hybrid coordinator. Start subscribes to the
// device's push topics and begins polling.
func NewHybrid(cfg Config, source MQTTSource) *Hybrid {
	c := New(cfg)
	c.mqttSource = source
	return &Hybrid{Coordinator: c}
}

// PushConnected reports whether the broker connection is up.
func (h *Hybrid) PushConnected() bool {
	return h.mqttSource != nil && h.mqttSource.IsConnected()
}

// subscribePush wires the device's push topics into the run loop.
//
// Handlers run on paho goroutines; updates are handed to the loop via a
// buffered channel. After Stop the done guard turns late deliveries into
// no-ops instead of sends on a dead channel.
func (c *Coordinator) subscribePush() error {
	return c.mqttSource.SubscribeDevice(c.sn,
		func(_ string, params device.State) {
			select {
			case <-c.done:
			case c.pushCh <- params:
			default:
				// Buffer full: drop the oldest-style delta; the next full
				// poll restores anything missed.
				c.logger.Warn("push buffer full, dropping update")
			}
		},
		func(_ string, online bool) {
			c.diag.RecordMessage("status", map[string]any{"online": online})
		},
	)
}
