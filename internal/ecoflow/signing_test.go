package ecoflow

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSign_KnownVectors(t *testing.T) {
	tests := []struct {
		name   string
		params string
		want   string
	}{
		{
			name:   "no parameters",
			params: "",
			want:   "1779847eb4dac04719d923c1a391493e214c83b81804956428db87178198525a",
		},
		{
			name:   "with serial number",
			params: "sn=SN123",
			want:   "e17ca4c1c295c4e7a708641beef48f960ce07c46eb22ebf2b3396b993d9fda4b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sign("SK1", tt.params, "AK1", "123456", "1700000000000")
			if got != tt.want {
				t.Errorf("sign() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSign_Deterministic(t *testing.T) {
	first := sign("secret", "a=1&b=2", "key", "654321", "1700000000001")
	second := sign("secret", "a=1&b=2", "key", "654321", "1700000000001")
	if first != second {
		t.Errorf("sign() not deterministic: %s != %s", first, second)
	}
}

func TestFlattenParams(t *testing.T) {
	params := map[string]any{
		"sn": "SN123",
		"params": map[string]any{
			"cmdSet": 32,
			"id":     66,
			"quotas": []any{"pd.soc", "inv.outputWatts"},
		},
	}

	got := flattenParams(params)
	want := map[string]string{
		"sn":               "SN123",
		"params.cmdSet":    "32",
		"params.id":        "66",
		"params.quotas[0]": "pd.soc",
		"params.quotas[1]": "inv.outputWatts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("flattenParams() mismatch (-want +got):\n%s", diff)
	}
}

func TestParamString_Sorted(t *testing.T) {
	params := map[string]any{
		"zeta":  1,
		"alpha": 2,
		"mid":   map[string]any{"b": 3, "a": 4},
	}

	got := paramString(params)
	want := "alpha=2&mid.a=4&mid.b=3&zeta=1"
	if got != want {
		t.Errorf("paramString() = %q, want %q", got, want)
	}
}

func TestParamString_Empty(t *testing.T) {
	if got := paramString(nil); got != "" {
		t.Errorf("paramString(nil) = %q, want empty", got)
	}
	if got := paramString(map[string]any{}); got != "" {
		t.Errorf("paramString(empty) = %q, want empty", got)
	}
}

func TestFormatScalar_JSONNumbers(t *testing.T) {
	// Values decoded from JSON arrive as float64; integral values must
	// render without a decimal point to match the request body bytes.
	tests := []struct {
		value any
		want  string
	}{
		{float64(3000), "3000"},
		{float64(0), "0"},
		{22.5, "22.5"},
		{true, "true"},
		{"text", "text"},
	}

	for _, tt := range tests {
		if got := formatScalar(tt.value); got != tt.want {
			t.Errorf("formatScalar(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestNewNonce(t *testing.T) {
	for i := 0; i < 100; i++ {
		nonce := newNonce()
		if len(nonce) != 6 {
			t.Fatalf("newNonce() = %q, want 6 digits", nonce)
		}
		n, err := strconv.Atoi(nonce)
		if err != nil {
			t.Fatalf("newNonce() = %q, not numeric: %v", nonce, err)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("newNonce() = %d, out of range", n)
		}
	}
}
