package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAESKey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const testHMACKey = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

func minimalYAML() string {
	return `
crypto:
  aesKey: ` + testAESKey + `
  hmacKey: ` + testHMACKey + `
whatsapp:
  apiToken: test-token-1234
  phoneNumberId: "109361234567890"
  recipientNumber: "+91 98765 43210"
`
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML()))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.RateLimitPerMinute)
	assert.Equal(t, 5, cfg.Server.VerifyRateLimitPerMinute)
	assert.Equal(t, "smsgate", cfg.Storage.MongoDB.Database)

	assert.Equal(t, 300, cfg.TTL.OTP)
	assert.Equal(t, 600, cfg.TTL.Transaction)
	assert.Equal(t, 900, cfg.TTL.Bill)
	assert.Equal(t, 600, cfg.TTL.SecurityAlert)

	assert.Equal(t, 300, cfg.Replay.OTPWindow)
	assert.Equal(t, 600, cfg.Replay.DefaultWindow)

	assert.Equal(t, "otp_notification", cfg.WhatsApp.Templates.OTP)
	assert.Equal(t, "transaction_alert", cfg.WhatsApp.Templates.Transaction)
	assert.Equal(t, "bill_notification", cfg.WhatsApp.Templates.Bill)
	assert.Equal(t, "security_alert", cfg.WhatsApp.Templates.SecurityAlert)
}

func TestParse_TTLClamping(t *testing.T) {
	yaml := minimalYAML() + `
ttl:
  otp: 30
  transaction: 5000
  bill: 1200
  securityAlert: 10
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.TTL.OTP, "below minimum clamps up")
	assert.Equal(t, 900, cfg.TTL.Transaction, "above maximum clamps down")
	assert.Equal(t, 1200, cfg.TTL.Bill, "in range passes through")
	assert.Equal(t, 60, cfg.TTL.SecurityAlert)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_SMSGATE_AES", testAESKey)

	yaml := strings.Replace(minimalYAML(), testAESKey, "${TEST_SMSGATE_AES}", 1)
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, testAESKey, cfg.Crypto.AESKey)
}

func TestParse_KeyValidation(t *testing.T) {
	cases := []struct {
		name    string
		aesKey  string
		hmacKey string
	}{
		{"short AES key", "abcd", testHMACKey},
		{"non-hex AES key", strings.Repeat("zz", 32), testHMACKey},
		{"short HMAC key", testAESKey, "abcd"},
		{"empty keys", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			yaml := `
crypto:
  aesKey: "` + tc.aesKey + `"
  hmacKey: "` + tc.hmacKey + `"
whatsapp:
  apiToken: test-token-1234
  phoneNumberId: "109361234567890"
  recipientNumber: "+919876543210"
`
			_, err := Parse([]byte(yaml))
			require.Error(t, err)
			// Errors about keys must never echo the key material.
			if tc.aesKey != "" {
				assert.NotContains(t, err.Error(), tc.aesKey)
			}
		})
	}
}

func TestParse_RecipientNormalization(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML()))
	require.NoError(t, err)
	assert.Equal(t, "919876543210", cfg.WhatsApp.RecipientNumber)

	bad := strings.Replace(minimalYAML(), `"+91 98765 43210"`, `"12345"`, 1)
	_, err = Parse([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipientNumber")
}

func TestParse_WhatsAppValidation(t *testing.T) {
	missingToken := strings.Replace(minimalYAML(), "test-token-1234", `""`, 1)
	_, err := Parse([]byte(missingToken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiToken")

	shortID := strings.Replace(minimalYAML(), `"109361234567890"`, `"123"`, 1)
	_, err = Parse([]byte(shortID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phoneNumberId")
}

func TestParse_RejectsNegativeRateLimits(t *testing.T) {
	yaml := minimalYAML() + `
server:
  rateLimitPerMinute: -1
`
	_, err := Parse([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rateLimitPerMinute")

	yaml = minimalYAML() + `
server:
  verifyRateLimitPerMinute: -5
`
	_, err = Parse([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verifyRateLimitPerMinute")
}

func TestParse_TLSValidation(t *testing.T) {
	yaml := minimalYAML() + `
server:
  tls:
    enabled: true
`
	_, err := Parse([]byte(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [not a map"))
	require.Error(t, err)
}

func TestTTLDurations(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML()))
	require.NoError(t, err)

	otp, txn, bill, sec := cfg.TTL.TTLDurations()
	assert.Equal(t, "5m0s", otp.String())
	assert.Equal(t, "10m0s", txn.String())
	assert.Equal(t, "15m0s", bill.String())
	assert.Equal(t, "10m0s", sec.String())
}
