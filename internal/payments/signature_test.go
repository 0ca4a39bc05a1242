package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1"}`)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tolerance := 5 * time.Minute

	header := SignatureHeader(secret, now.Unix(), body)
	require.NoError(t, VerifySignature(secret, header, body, now, tolerance))

	// header from a slightly earlier clock still verifies
	early := SignatureHeader(secret, now.Add(-time.Minute).Unix(), body)
	require.NoError(t, VerifySignature(secret, early, body, now, tolerance))
}

func TestVerifySignatureRejects(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1"}`)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tolerance := 5 * time.Minute

	cases := map[string]string{
		"wrong secret":    SignatureHeader("whsec_other", now.Unix(), body),
		"tampered body":   SignatureHeader(secret, now.Unix(), []byte(`{"id":"evt_2"}`)),
		"stale timestamp": SignatureHeader(secret, now.Add(-10*time.Minute).Unix(), body),
		"future clock":    SignatureHeader(secret, now.Add(10*time.Minute).Unix(), body),
		"missing v1":      "t=1748779200",
		"missing t":       "v1=deadbeef",
		"bad timestamp":   "t=abc,v1=deadbeef",
		"bad hex":         "t=1748779200,v1=zzzz",
		"empty":           "",
	}
	for name, header := range cases {
		err := VerifySignature(secret, header, body, now, tolerance)
		assert.ErrorIs(t, err, ErrUnauthenticatedWebhook, name)
	}
}
