package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPLimiter_BurstExhaustion(t *testing.T) {
	l := newIPLimiter(3)

	assert.True(t, l.allow("192.0.2.1"))
	assert.True(t, l.allow("192.0.2.1"))
	assert.True(t, l.allow("192.0.2.1"))
	assert.False(t, l.allow("192.0.2.1"))
}

func TestIPLimiter_PerClientIsolation(t *testing.T) {
	l := newIPLimiter(1)

	assert.True(t, l.allow("192.0.2.1"))
	assert.False(t, l.allow("192.0.2.1"))

	// A different address has its own bucket.
	assert.True(t, l.allow("192.0.2.2"))
}
