package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// mqttProtocolVersion pins MQTT 3.1.1; the vendor broker rejects
	// MQTT 5 connects.
	mqttProtocolVersion = 4

	// tlsMinVersion is the minimum TLS version for the broker connection.
	tlsMinVersion = tls.VersionTLS12
)

// Credentials holds the broker endpoint and per-account credentials
// issued by the cloud certification endpoint.
type Credentials struct {
	// Host is the broker hostname (mqtt.ecoflow.com).
	Host string

	// Port is the broker TLS port (8883).
	Port int

	// CertificateAccount is both the MQTT username and the topic prefix.
	CertificateAccount string

	// CertificatePassword is the MQTT password.
	CertificatePassword string
}

// Validate checks the credentials are complete.
func (c Credentials) Validate() error {
	if c.Host == "" || c.Port <= 0 {
		return fmt.Errorf("%w: broker endpoint", ErrMissingCredentials)
	}
	if c.CertificateAccount == "" || c.CertificatePassword == "" {
		return ErrMissingCredentials
	}
	return nil
}

// buildClientOptions creates paho MQTT options for the vendor broker.
//
// This configures:
//   - TLS broker URL on port 8883
//   - MQTT 3.1.1 protocol version
//   - Certificate account credentials
//   - Auto-reconnect with paho's exponential backoff
//   - A unique client ID per session (the broker drops duplicate IDs)
func buildClientOptions(creds Credentials) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("ssl://%s:%d", creds.Host, creds.Port))
	opts.SetClientID("ecoflow-bridge-" + uuid.NewString()[:8])
	opts.SetUsername(creds.CertificateAccount)
	opts.SetPassword(creds.CertificatePassword)
	opts.SetProtocolVersion(mqttProtocolVersion)

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	opts.SetTLSConfig(&tls.Config{
		MinVersion: tlsMinVersion,
	})

	return opts
}

// connackHint maps broker CONNACK refusal codes to remediation hints.
// Paho surfaces these as connect errors; rc 4 and 5 almost always mean
// stale certificate credentials that need re-issuing.
func connackHint(rc byte) string {
	switch rc {
	case 1:
		return "broker refused protocol version; the vendor broker requires MQTT 3.1.1"
	case 2:
		return "broker rejected client identifier; retry generates a new client ID"
	case 3:
		return "broker unavailable; vendor outage, retry later"
	case 4:
		return "bad username or password; re-issue MQTT credentials via the certification endpoint"
	case 5:
		return "not authorized; certificate account may be revoked, re-issue credentials"
	default:
		return "unknown CONNACK code"
	}
}
