package ecoflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wattbridge/ecoflow-bridge/internal/device"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/logging"
)

// DefaultBaseURL is the public cloud API endpoint.
const DefaultBaseURL = "https://api-e.ecoflow.com"

// DefaultTimeout bounds each HTTP request.
const DefaultTimeout = 30 * time.Second

// API paths.
const (
	pathDeviceList    = "/iot-open/sign/device/list"
	pathDeviceQuota   = "/iot-open/sign/device/quota/all"
	pathSetQuota      = "/iot-open/sign/device/quota"
	pathCertification = "/iot-open/sign/certification"
)

// Client is a signed HTTP client for the EcoFlow IoT Open API.
//
// Every request carries accessKey/nonce/timestamp headers plus an
// HMAC-SHA256 signature over the sorted request parameters. The zero
// value is not usable; construct with NewClient.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	accessKey  string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger

	// nonce and timestamp are injectable for deterministic signing tests.
	nonce     func() string
	timestamp func() string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the cloud API endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a signed API client.
//
// Parameters:
//   - accessKey: Developer access key from the EcoFlow IoT console
//   - secretKey: Matching secret key, used only for signing
//   - opts: Optional overrides (base URL, HTTP client, timeout, logger)
//
// Returns:
//   - *Client: Ready-to-use client with a 30s request timeout
func NewClient(accessKey, secretKey string, opts ...Option) *Client {
	c := &Client{
		accessKey:  accessKey,
		secretKey:  secretKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logging.Default(),
		nonce:      newNonce,
		timestamp:  newTimestamp,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Certificate holds the per-account MQTT credentials issued by the cloud.
type Certificate struct {
	CertificateAccount  string `json:"certificateAccount"`
	CertificatePassword string `json:"certificatePassword"`
	URL                 string `json:"url"`
	Port                string `json:"port"`
	Protocol            string `json:"protocol"`
}

// DeviceList returns all devices bound to the account.
func (c *Client) DeviceList(ctx context.Context) ([]device.Info, error) {
	data, err := c.request(ctx, http.MethodGet, pathDeviceList, nil)
	if err != nil {
		return nil, err
	}

	var devices []device.Info
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("%w: decoding device list: %v", ErrConnection, err)
	}
	return devices, nil
}

// DeviceQuota returns the full quota state for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - sn: Device serial number
//
// Returns:
//   - device.State: All quota parameters the cloud currently holds
//   - error: Sentinel-wrapped failure (ErrAuthentication, ErrAPI, ErrConnection)
func (c *Client) DeviceQuota(ctx context.Context, sn string) (device.State, error) {
	if sn == "" {
		return nil, device.ErrInvalidSN
	}

	data, err := c.request(ctx, http.MethodGet, pathDeviceQuota, map[string]any{"sn": sn})
	if err != nil {
		return nil, err
	}

	var state device.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: decoding quota: %v", ErrConnection, err)
	}
	return state, nil
}

// SetQuota sends a command to a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - sn: Device serial number
//   - cmdCode: Vendor command code (for example "WN511_SET_AC_OUT")
//   - params: Command parameters, signed and sent as the JSON body
//
// Returns:
//   - error: Sentinel-wrapped failure; nil means the cloud accepted the command
func (c *Client) SetQuota(ctx context.Context, sn, cmdCode string, params map[string]any) error {
	if sn == "" {
		return device.ErrInvalidSN
	}
	if cmdCode == "" {
		return fmt.Errorf("%w: command code is required", ErrAPI)
	}

	body := map[string]any{
		"sn":      sn,
		"cmdCode": cmdCode,
		"params":  params,
	}

	_, err := c.request(ctx, http.MethodPut, pathSetQuota, body)
	return err
}

// IssueCertificate requests MQTT broker credentials for the account.
// The returned credentials are stable per access key and can be cached.
func (c *Client) IssueCertificate(ctx context.Context) (*Certificate, error) {
	data, err := c.request(ctx, http.MethodGet, pathCertification, nil)
	if err != nil {
		return nil, err
	}

	var cert Certificate
	if err := json.Unmarshal(data, &cert); err != nil {
		return nil, fmt.Errorf("%w: decoding certificate: %v", ErrConnection, err)
	}
	if cert.CertificateAccount == "" || cert.CertificatePassword == "" {
		return nil, fmt.Errorf("%w: certificate response missing credentials", ErrAPI)
	}
	return &cert, nil
}

// envelope is the standard response wrapper. Code arrives as a string or
// a number depending on the endpoint.
type envelope struct {
	Code    any             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// request performs a signed HTTP request and unwraps the response
// envelope, returning the raw data payload.
func (c *Client) request(ctx context.Context, method, path string, params map[string]any) (json.RawMessage, error) {
	paramStr := paramString(params)
	nonce := c.nonce()
	timestamp := c.timestamp()
	signature := sign(c.secretKey, paramStr, c.accessKey, nonce, timestamp)

	requestURL := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if paramStr != "" {
			// The query must carry the exact bytes the signature covers,
			// so the raw flattened string is appended unencoded.
			requestURL += "?" + paramStr
		}
	} else if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding request body: %v", ErrConnection, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrConnection, err)
	}

	req.Header.Set("accessKey", c.accessKey)
	req.Header.Set("nonce", nonce)
	req.Header.Set("timestamp", timestamp)
	req.Header.Set("sign", signature)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("cloud api request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrConnection, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{HTTPStatus: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Message != "" {
			apiErr.Code = codeString(env.Code)
			apiErr.Message = env.Message
		}
		c.logger.Warn("cloud api request failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return nil, apiErr
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrConnection, err)
	}

	if !successCode(env.Code) {
		c.logger.Warn("cloud api business error",
			"method", method,
			"path", path,
			"code", codeString(env.Code),
			"message", env.Message,
		)
		return nil, &APIError{
			HTTPStatus: resp.StatusCode,
			Code:       codeString(env.Code),
			Message:    env.Message,
		}
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return respBody, nil
	}
	return env.Data, nil
}

// successCode reports whether the envelope code means success. The API
// answers with "0", 0, "200", 200 or omits the field entirely.
func successCode(code any) bool {
	switch v := code.(type) {
	case nil:
		return true
	case string:
		return v == "0" || v == "200"
	case float64:
		return v == 0 || v == 200
	default:
		return false
	}
}

// codeString renders the envelope code for error reporting.
func codeString(code any) string {
	switch v := code.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
