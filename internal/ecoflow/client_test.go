package ecoflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestClient creates a client pointed at a test server with fixed
// nonce and timestamp for deterministic signatures.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("AK1", "SK1", WithBaseURL(server.URL))
	client.nonce = func() string { return "123456" }
	client.timestamp = func() string { return "1700000000000" }
	return client
}

func TestDeviceList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathDeviceList {
			t.Errorf("path = %q, want %q", r.URL.Path, pathDeviceList)
		}
		if got := r.Header.Get("accessKey"); got != "AK1" {
			t.Errorf("accessKey header = %q, want AK1", got)
		}
		if got := r.Header.Get("sign"); got == "" {
			t.Error("sign header missing")
		}
		w.Write([]byte(`{"code":"0","message":"Success","data":[
			{"sn":"SN123","deviceName":"Garage","productName":"DELTA Pro 3","online":1},
			{"sn":"SN456","online":0}
		]}`))
	})

	devices, err := client.DeviceList(context.Background())
	if err != nil {
		t.Fatalf("DeviceList() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len(devices) = %d, want 2", len(devices))
	}
	if devices[0].SN != "SN123" || !devices[0].IsOnline() {
		t.Errorf("devices[0] = %+v, want SN123 online", devices[0])
	}
	if devices[1].IsOnline() {
		t.Error("devices[1] online = true, want false")
	}
}

func TestDeviceQuota(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sn"); got != "SN123" {
			t.Errorf("sn query = %q, want SN123", got)
		}
		// The signature must cover the same sn the query carries.
		want := sign("SK1", "sn=SN123", "AK1", "123456", "1700000000000")
		if got := r.Header.Get("sign"); got != want {
			t.Errorf("sign header = %s, want %s", got, want)
		}
		w.Write([]byte(`{"code":0,"message":"Success","data":{"bmsMaster.soc":82.5,"pd.wattsOutSum":340}}`))
	})

	state, err := client.DeviceQuota(context.Background(), "SN123")
	if err != nil {
		t.Fatalf("DeviceQuota() error = %v", err)
	}
	if got := state["bmsMaster.soc"]; got != 82.5 {
		t.Errorf("state[bmsMaster.soc] = %v, want 82.5", got)
	}
}

func TestDeviceQuota_QueryCarriesSignedBytes(t *testing.T) {
	// Reserved characters must reach the server unencoded: the wire
	// query has to be byte-identical to the string the signature covers.
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.RawQuery; got != "sn=AB+C:1" {
			t.Errorf("raw query = %q, want %q", got, "sn=AB+C:1")
		}
		want := sign("SK1", r.URL.RawQuery, "AK1", "123456", "1700000000000")
		if got := r.Header.Get("sign"); got != want {
			t.Errorf("sign header = %s, want %s", got, want)
		}
		w.Write([]byte(`{"code":"0","message":"Success","data":{}}`))
	})

	if _, err := client.DeviceQuota(context.Background(), "AB+C:1"); err != nil {
		t.Fatalf("DeviceQuota() error = %v", err)
	}
}

func TestDeviceQuota_EmptySN(t *testing.T) {
	client := NewClient("AK1", "SK1")

	if _, err := client.DeviceQuota(context.Background(), ""); err == nil {
		t.Error("DeviceQuota(\"\") error = nil, want error")
	}
}

func TestRequest_BusinessError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"1001","message":"device offline"}`))
	})

	_, err := client.DeviceQuota(context.Background(), "SN123")
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("error = %v, want ErrAPI", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *APIError", err)
	}
	if apiErr.Code != "1001" {
		t.Errorf("Code = %q, want 1001", apiErr.Code)
	}
	if apiErr.Message != "device offline" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "device offline")
	}
}

func TestRequest_NumericSuccessCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"message":"ok","data":{"soc":50}}`))
	})

	if _, err := client.DeviceQuota(context.Background(), "SN123"); err != nil {
		t.Errorf("DeviceQuota() error = %v, want nil for code 200", err)
	}
}

func TestRequest_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"401","message":"sign check fail"}`))
	})

	_, err := client.DeviceList(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("error = %v, want ErrAuthentication", err)
	}
}

func TestRequest_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.DeviceList(context.Background())
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("error = %v, want ErrAPI", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *APIError", err)
	}
	if apiErr.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want 502", apiErr.HTTPStatus)
	}
}

func TestRequest_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	client.httpClient.Timeout = 20 * time.Millisecond

	_, err := client.DeviceList(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
}

func TestRequest_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := client.DeviceList(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
}

func TestIssueCertificate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathCertification {
			t.Errorf("path = %q, want %q", r.URL.Path, pathCertification)
		}
		w.Write([]byte(`{"code":"0","message":"Success","data":{
			"certificateAccount":"open-abc123",
			"certificatePassword":"secret-pass",
			"url":"mqtt.ecoflow.com",
			"port":"8883",
			"protocol":"mqtts"
		}}`))
	})

	cert, err := client.IssueCertificate(context.Background())
	if err != nil {
		t.Fatalf("IssueCertificate() error = %v", err)
	}
	if cert.CertificateAccount != "open-abc123" {
		t.Errorf("CertificateAccount = %q, want open-abc123", cert.CertificateAccount)
	}
	if cert.Port != "8883" {
		t.Errorf("Port = %q, want 8883", cert.Port)
	}
}

func TestIssueCertificate_MissingCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","message":"Success","data":{}}`))
	})

	if _, err := client.IssueCertificate(context.Background()); !errors.Is(err, ErrAPI) {
		t.Errorf("error = %v, want ErrAPI", err)
	}
}
