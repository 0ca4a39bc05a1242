package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnauthenticatedWebhook means the signature check failed. The event is
// rejected without any processing and logged as a potential security event.
var ErrUnauthenticatedWebhook = errors.New("webhook signature verification failed")

// VerifySignature checks a provider signature header of the form
// "t=<unix>,v1=<hex>" where the hex value is HMAC-SHA256 over "<t>.<body>"
// with the shared secret. The timestamp must be within tolerance of now to
// blunt replay of captured deliveries.
func VerifySignature(secret, header string, body []byte, now time.Time, tolerance time.Duration) error {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrUnauthenticatedWebhook)
			}
			ts = parsed
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return fmt.Errorf("%w: missing signature elements", ErrUnauthenticatedWebhook)
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrUnauthenticatedWebhook)
	}

	expected := ComputeSignature(secret, ts, body)
	provided, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrUnauthenticatedWebhook)
	}
	if !hmac.Equal(provided, expected) {
		return ErrUnauthenticatedWebhook
	}
	return nil
}

// ComputeSignature returns the raw HMAC-SHA256 of "<ts>.<body>".
func ComputeSignature(secret string, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeader builds the header value ComputeSignature verifies. Used by
// tests and local tooling.
func SignatureHeader(secret string, ts int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(ComputeSignature(secret, ts, body)))
}
