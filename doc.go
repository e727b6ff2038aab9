/*
Package smsgate implements a secure SMS-to-WhatsApp forwarding gateway.

# Overview

smsgate receives encrypted SMS content over HTTP, authenticates and decrypts
it, classifies it into a message category, deduplicates it against a TTL
store, and forwards a masked notification through the WhatsApp Business
Cloud API. Message plaintext exists only in memory for the duration of one
request and is never persisted or logged.

# Package Structure

	github.com/relaymesh/smsgate/pkg/security   - HMAC verification and AES-256-GCM decryption
	github.com/relaymesh/smsgate/pkg/replay     - timestamp freshness enforcement
	github.com/relaymesh/smsgate/pkg/classify   - content classification rules
	github.com/relaymesh/smsgate/pkg/templates  - notification rendering and masking
	github.com/relaymesh/smsgate/pkg/message    - shared data model
	github.com/relaymesh/smsgate/internal/...   - pipeline, storage, notifier, HTTP server

# Request Flow

Each inbound envelope passes through a fixed sequence: replay window check,
signature verification, decryption, classification (when no type is
declared), fingerprint deduplication, template rendering, and delivery. A
duplicate fingerprint short-circuits as a successful no-op; every security
failure surfaces as a single generic authentication error.

# Quick Start

Run the gateway with a YAML configuration file:

	smsgate serve --config /etc/smsgate/config.yaml

Secrets (AES key, HMAC key, WhatsApp token) are injected through
environment variable expansion in the configuration file. See the
internal/config package for the full schema.
*/
package smsgate
