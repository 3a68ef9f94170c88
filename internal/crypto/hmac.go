package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the L2 credentials for authenticated CLOB requests.
type HMACAuth struct {
	Key        string
	Secret     string // URL-safe base64
	Passphrase string
}

// L2Headers returns the POLY_* headers for a request sent now.
func (h *HMACAuth) L2Headers(address, method, path, body string) map[string]string {
	return h.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt signs timestamp+method+path+body with the decoded secret.
func (h *HMACAuth) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    h.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  h.sign(ts + method + path + body),
	}
}

// sign returns URL-safe base64 HMAC-SHA256 of message. Secrets that are not
// valid base64 are used as raw bytes.
func (h *HMACAuth) sign(message string) string {
	key, err := base64.URLEncoding.DecodeString(h.Secret)
	if err != nil {
		if key, err = base64.StdEncoding.DecodeString(h.Secret); err != nil {
			key = []byte(h.Secret)
		}
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// String redacts the credentials.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
