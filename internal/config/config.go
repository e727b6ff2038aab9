// Package config handles configuration loading for the gateway.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax), so the cryptographic keys and
// the WhatsApp API token can be injected at runtime and never live in the
// file itself.
//
// # Example Configuration
//
//	server:
//	  port: 8080
//	  rateLimitPerMinute: 10
//
//	crypto:
//	  aesKey: ${SMSGATE_AES_KEY}
//	  hmacKey: ${SMSGATE_HMAC_KEY}
//
//	whatsapp:
//	  apiToken: ${SMSGATE_WA_TOKEN}
//	  phoneNumberId: "109361234567890"
//	  recipientNumber: "+91 98765 43210"
//
//	storage:
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: smsgate
//
//	ttl:
//	  otp: 300
//	  transaction: 600
//	  bill: 900
//	  securityAlert: 600
//
// All invariants - key lengths, TTL ranges, recipient format - are enforced
// here at startup, not at call time. See [Load].
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Storage  StorageConfig  `yaml:"storage"`
	TTL      TTLConfig      `yaml:"ttl"`
	Replay   ReplayConfig   `yaml:"replay"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                     int `yaml:"port"`
	RateLimitPerMinute       int `yaml:"rateLimitPerMinute"`
	VerifyRateLimitPerMinute int `yaml:"verifyRateLimitPerMinute"`
	TLS                      struct {
		Enabled  bool   `yaml:"enabled"`
		CertFile string `yaml:"certFile"`
		KeyFile  string `yaml:"keyFile"`
	} `yaml:"tls"`
}

// CryptoConfig holds the two process-wide secrets as 64-character hex
// strings. They are decoded once at startup and never logged.
type CryptoConfig struct {
	AESKey  string `yaml:"aesKey"`
	HMACKey string `yaml:"hmacKey"`
}

// WhatsAppConfig holds WhatsApp Business Cloud API settings.
type WhatsAppConfig struct {
	APIToken        string `yaml:"apiToken"`
	PhoneNumberID   string `yaml:"phoneNumberId"`
	RecipientNumber string `yaml:"recipientNumber"`

	Templates TemplateConfig `yaml:"templates"`
}

// TemplateConfig names the pre-approved template per message type.
type TemplateConfig struct {
	OTP           string `yaml:"otp"`
	Transaction   string `yaml:"transaction"`
	Bill          string `yaml:"bill"`
	SecurityAlert string `yaml:"securityAlert"`
}

// StorageConfig holds backing store settings. An empty MongoDB URI selects
// the in-process fallback store.
type StorageConfig struct {
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings.
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// TTLConfig holds fingerprint lifetimes in seconds, one per message type.
// Each value is clamped to its documented range at load time.
type TTLConfig struct {
	OTP           int `yaml:"otp"`
	Transaction   int `yaml:"transaction"`
	Bill          int `yaml:"bill"`
	SecurityAlert int `yaml:"securityAlert"`
}

// ReplayConfig holds the timestamp acceptance windows in seconds.
type ReplayConfig struct {
	OTPWindow     int `yaml:"otpWindow"`
	DefaultWindow int `yaml:"defaultWindow"`
}

// ttlRange is the allowed [min,max] for one TTL setting.
type ttlRange struct {
	def, min, max int
}

var ttlRanges = map[string]ttlRange{
	"otp":           {def: 300, min: 60, max: 600},
	"transaction":   {def: 600, min: 60, max: 900},
	"bill":          {def: 900, min: 60, max: 1800},
	"securityAlert": {def: 600, min: 60, max: 900},
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse loads configuration from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerMinute == 0 {
		c.Server.RateLimitPerMinute = 10
	}
	if c.Server.VerifyRateLimitPerMinute == 0 {
		c.Server.VerifyRateLimitPerMinute = 5
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "smsgate"
	}
	if c.WhatsApp.Templates.OTP == "" {
		c.WhatsApp.Templates.OTP = "otp_notification"
	}
	if c.WhatsApp.Templates.Transaction == "" {
		c.WhatsApp.Templates.Transaction = "transaction_alert"
	}
	if c.WhatsApp.Templates.Bill == "" {
		c.WhatsApp.Templates.Bill = "bill_notification"
	}
	if c.WhatsApp.Templates.SecurityAlert == "" {
		c.WhatsApp.Templates.SecurityAlert = "security_alert"
	}
	if c.Replay.OTPWindow == 0 {
		c.Replay.OTPWindow = 300
	}
	if c.Replay.DefaultWindow == 0 {
		c.Replay.DefaultWindow = 600
	}

	c.TTL.OTP = clampTTL(c.TTL.OTP, ttlRanges["otp"])
	c.TTL.Transaction = clampTTL(c.TTL.Transaction, ttlRanges["transaction"])
	c.TTL.Bill = clampTTL(c.TTL.Bill, ttlRanges["bill"])
	c.TTL.SecurityAlert = clampTTL(c.TTL.SecurityAlert, ttlRanges["securityAlert"])
}

func clampTTL(v int, r ttlRange) int {
	if v == 0 {
		return r.def
	}
	if v < r.min {
		return r.min
	}
	if v > r.max {
		return r.max
	}
	return v
}

func (c *Config) validate() error {
	if _, _, err := c.Crypto.DecodeKeys(); err != nil {
		return err
	}

	// Defaults only replace zero values; a negative limit would disable
	// rate limiting entirely downstream.
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rateLimitPerMinute must be positive")
	}
	if c.Server.VerifyRateLimitPerMinute < 0 {
		return fmt.Errorf("server.verifyRateLimitPerMinute must be positive")
	}

	if len(c.WhatsApp.APIToken) < 10 {
		return fmt.Errorf("whatsapp.apiToken is required (at least 10 characters)")
	}
	if len(c.WhatsApp.PhoneNumberID) < 10 {
		return fmt.Errorf("whatsapp.phoneNumberId is required (at least 10 characters)")
	}

	recipient := normalizeNumber(c.WhatsApp.RecipientNumber)
	if len(recipient) < 10 {
		return fmt.Errorf("whatsapp.recipientNumber must include country code and be at least 10 digits")
	}
	c.WhatsApp.RecipientNumber = recipient

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls requires certFile and keyFile when enabled")
	}

	return nil
}

// DecodeKeys returns the raw AES and HMAC keys. Both must be exactly 64
// hex characters (32 bytes). The error never echoes key material.
func (c *CryptoConfig) DecodeKeys() (aesKey, hmacKey []byte, err error) {
	aesKey, err = decodeKey(c.AESKey, "crypto.aesKey")
	if err != nil {
		return nil, nil, err
	}
	hmacKey, err = decodeKey(c.HMACKey, "crypto.hmacKey")
	if err != nil {
		return nil, nil, err
	}
	return aesKey, hmacKey, nil
}

func decodeKey(value, name string) ([]byte, error) {
	if len(value) != 64 {
		return nil, fmt.Errorf("%s must be exactly 64 hex characters", name)
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s must be a valid hexadecimal string", name)
	}
	return key, nil
}

// normalizeNumber strips everything but digits.
func normalizeNumber(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TTLDurations converts the TTL settings to time.Durations.
func (c *TTLConfig) TTLDurations() (otp, transaction, bill, securityAlert time.Duration) {
	return time.Duration(c.OTP) * time.Second,
		time.Duration(c.Transaction) * time.Second,
		time.Duration(c.Bill) * time.Second,
		time.Duration(c.SecurityAlert) * time.Second
}
