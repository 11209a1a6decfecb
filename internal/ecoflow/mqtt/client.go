package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/wattbridge/ecoflow-bridge/internal/device"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/logging"
)

// QuotaHandler receives parameter updates pushed by a device.
//
// Handlers are invoked from paho's receive goroutines and must not block
// for extended periods.
type QuotaHandler func(sn string, params device.State)

// StatusHandler receives online/offline transitions for a device.
type StatusHandler func(sn string, online bool)

// Client wraps paho.mqtt.golang for the vendor's device push broker.
//
// It subscribes to per-device quota, status and set_reply topics,
// decodes the vendor envelopes, and republishes commands on the set
// topic. Subscriptions are restored automatically on reconnect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	topics Topics
	logger *logging.Logger

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]pahomqtt.MessageHandler
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex
}

// Connect establishes a TLS connection to the vendor broker.
//
// Parameters:
//   - creds: Broker endpoint and certificate credentials from the
//     certification endpoint (or static configuration)
//   - logger: Logger for connection events and handler errors
//
// Returns:
//   - *Client: Connected client ready for subscriptions
//   - error: ErrMissingCredentials or ErrConnectionFailed with a
//     remediation hint for CONNACK refusals
func Connect(creds Credentials, logger *logging.Logger) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := buildClientOptions(creds)

	c := &Client{
		topics:        Topics{Account: creds.CertificateAccount},
		logger:        logger,
		subscriptions: make(map[string]pahomqtt.MessageHandler),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		if hint := connectHint(err); hint != "" {
			return nil, fmt.Errorf("%w: %w (%s)", ErrConnectionFailed, err, hint)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet; set connected here so IsConnected() is immediately true.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

// SubscribeDevice subscribes to all push topics for one device.
//
// Quota updates are decoded and delivered to onQuota. Status transitions
// go to onStatus when set and are logged either way. Command replies are
// logged, with failures at warn level.
//
// Parameters:
//   - sn: Device serial number
//   - onQuota: Receives decoded parameter updates (required)
//   - onStatus: Receives online/offline transitions (optional)
//
// Returns:
//   - error: ErrSubscribeFailed if any of the three subscriptions fails
func (c *Client) SubscribeDevice(sn string, onQuota QuotaHandler, onStatus StatusHandler) error {
	if sn == "" {
		return device.ErrInvalidSN
	}
	if onQuota == nil {
		return fmt.Errorf("%w: quota handler is required", ErrSubscribeFailed)
	}

	handlers := map[string]pahomqtt.MessageHandler{
		c.topics.Quota(sn):    c.wrapHandler(c.quotaHandler(sn, onQuota)),
		c.topics.Status(sn):   c.wrapHandler(c.statusHandler(sn, onStatus)),
		c.topics.SetReply(sn): c.wrapHandler(c.setReplyHandler(sn)),
	}

	for topic, handler := range handlers {
		if err := c.subscribe(topic, handler); err != nil {
			return err
		}
	}

	c.logger.Info("subscribed to device push topics", "sn", sn)
	return nil
}

// PublishCommand publishes a command on the device's set topic.
//
// Parameters:
//   - sn: Device serial number
//   - payload: Command body, marshalled to JSON
//
// Returns:
//   - error: ErrNotConnected or ErrPublishFailed
func (c *Client) PublishCommand(sn string, payload any) error {
	if sn == "" {
		return device.ErrInvalidSN
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}

	token := c.client.Publish(c.topics.Set(sn), 1, false, body)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout", ErrPublishFailed)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close gracefully disconnects from the broker.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the broker connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked on initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// subscribe registers the topic with the broker and tracks it for
// restoration after reconnects.
func (c *Client) subscribe(topic string, handler pahomqtt.MessageHandler) error {
	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout subscribing %s", ErrSubscribeFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	c.subMu.Lock()
	c.subscriptions[topic] = handler
	c.subMu.Unlock()
	return nil
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.logger.Warn("broker connection lost", "error", err)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, handler := range c.subscriptions {
		c.client.Subscribe(topic, 1, handler)
	}
}

// quotaHandler decodes quota pushes and forwards the parameter map.
func (c *Client) quotaHandler(sn string, onQuota QuotaHandler) func(topic string, payload []byte) error {
	return func(_ string, payload []byte) error {
		params, err := unwrapQuota(payload)
		if err != nil {
			return err
		}
		if len(params) == 0 {
			return nil
		}
		onQuota(sn, params)
		return nil
	}
}

// statusHandler logs online/offline transitions and forwards them.
func (c *Client) statusHandler(sn string, onStatus StatusHandler) func(topic string, payload []byte) error {
	return func(_ string, payload []byte) error {
		status, err := parseStatus(payload)
		if err != nil {
			return err
		}
		online := status == 1
		c.logger.Info("device status changed", "sn", sn, "online", online)
		if onStatus != nil {
			onStatus(sn, online)
		}
		return nil
	}
}

// setReplyHandler logs command acknowledgments.
func (c *Client) setReplyHandler(sn string) func(topic string, payload []byte) error {
	return func(_ string, payload []byte) error {
		failure, err := parseSetReply(payload)
		if err != nil {
			return err
		}
		if failure != "" {
			c.logger.Warn("device rejected command", "sn", sn, "reply", failure)
			return nil
		}
		c.logger.Debug("device acknowledged command", "sn", sn)
		return nil
	}
}

// wrapHandler wraps a handler with panic recovery and error logging.
func (c *Client) wrapHandler(handler func(topic string, payload []byte) error) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("mqtt handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("mqtt handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}

// connectHint maps paho connect errors onto CONNACK remediation hints.
func connectHint(err error) string {
	switch {
	case errors.Is(err, packets.ErrorRefusedBadProtocolVersion):
		return connackHint(1)
	case errors.Is(err, packets.ErrorRefusedIDRejected):
		return connackHint(2)
	case errors.Is(err, packets.ErrorRefusedServerUnavailable):
		return connackHint(3)
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword):
		return connackHint(4)
	case errors.Is(err, packets.ErrorRefusedNotAuthorised):
		return connackHint(5)
	default:
		return ""
	}
}
