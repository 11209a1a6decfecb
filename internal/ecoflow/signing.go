package ecoflow

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// flattenParams converts a nested parameter structure into the flat
// key/value pairs the signing scheme requires. Nested maps use dotted
// keys ("parent.child"), slices use indexed keys ("list[0]"). Scalar
// values are rendered with strconv-style formatting so floats and bools
// match the JSON body the server sees.
func flattenParams(params map[string]any) map[string]string {
	flat := make(map[string]string)
	for key, value := range params {
		flattenValue(flat, key, value)
	}
	return flat
}

func flattenValue(flat map[string]string, key string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for sub, subValue := range v {
			flattenValue(flat, key+"."+sub, subValue)
		}
	case nil:
		flat[key] = ""
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				flattenValue(flat, fmt.Sprintf("%s[%d]", key, i), rv.Index(i).Interface())
			}
			return
		}
		flat[key] = formatScalar(value)
	}
}

// formatScalar renders a scalar the way it appears in the JSON body.
// Integral floats print without a decimal point because JSON numbers
// decoded into any arrive as float64.
func formatScalar(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return formatScalar(float64(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// paramString renders flattened parameters as "k=v&k=v" with keys sorted
// lexicographically. Returns "" for empty parameter sets.
func paramString(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}

	flat := flattenParams(params)
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+flat[key])
	}
	return strings.Join(pairs, "&")
}

// sign computes the request signature: HMAC-SHA256 over the sorted
// parameter string concatenated with the access key, nonce and timestamp,
// keyed with the secret key, rendered as lowercase hex.
func sign(secretKey, params, accessKey, nonce, timestamp string) string {
	message := fmt.Sprintf("accessKey=%s&nonce=%s&timestamp=%s", accessKey, nonce, timestamp)
	if params != "" {
		message = params + "&" + message
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// newNonce returns a random six-digit numeric nonce.
func newNonce() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; fall back to the clock rather than panic.
		return strconv.FormatInt(100000+time.Now().UnixNano()%900000, 10)
	}
	return strconv.FormatInt(100000+n.Int64(), 10)
}

// newTimestamp returns the current time as a millisecond epoch string.
func newTimestamp() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
