// Package mqtt connects to the EcoFlow device push broker.
//
// Devices publish incremental quota updates, online/offline status and
// command acknowledgments under /open/{certificateAccount}/{sn}/. The
// client here wraps paho.mqtt.golang with the vendor specifics: TLS on
// port 8883, MQTT 3.1.1, certificate-account credentials from the cloud
// certification endpoint, and automatic re-subscription after reconnect.
//
// Quota payloads arrive wrapped in a "params" envelope which is
// unwrapped before delivery. CONNACK refusals are translated into
// remediation hints since a code 4/5 refusal almost always means the
// certificate credentials need re-issuing.
package mqtt
