package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saquib34/react-iframe-bridge/config"
	"github.com/saquib34/react-iframe-bridge/errors"
)

func gateWith(t *testing.T, mutate func(*config.Config)) *Gate {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Origin = "https://host.example.com"
	cfg.AllowedOrigins = []string{"https://example.com", "*.stripe.com"}
	if mutate != nil {
		mutate(cfg)
	}
	return NewGate(cfg, nil)
}

func TestGate_ValidateOrigin(t *testing.T) {
	gate := gateWith(t, nil)

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://example.com", true},
		{"https://js.stripe.com", true},
		{"https://checkout.js.stripe.com", true},
		{"https://stripe.com", true},
		{"https://evil.com", false},
		{"https://example.com.evil.com", false},
		{"https://notstripe.com", false},
		{"https://fakestripe.com", false},
		{"", false},
	}

	for _, test := range tests {
		t.Run(test.origin, func(t *testing.T) {
			assert.Equal(t, test.allowed, gate.ValidateOrigin(test.origin))
		})
	}
}

func TestGate_ValidateOrigin_UniversalWildcard(t *testing.T) {
	gate := gateWith(t, func(c *config.Config) {
		c.AllowedOrigins = []string{config.WildcardAll}
	})

	assert.True(t, gate.ValidateOrigin("https://anything.at.all"))
	assert.True(t, gate.ValidateOrigin("null"))
}

func TestGate_ValidateMessageSize_Boundary(t *testing.T) {
	gate := gateWith(t, func(c *config.Config) { c.MaxMessageSize = 64 })

	atCeiling := make([]byte, 64)
	assert.NoError(t, gate.ValidateMessageSize(atCeiling))

	oneOver := make([]byte, 65)
	err := gate.ValidateMessageSize(oneOver)
	require.Error(t, err)
	assert.True(t, errors.IsSecurity(err))
	assert.ErrorIs(t, err, errors.ErrMessageTooLarge)
}

func TestGate_ValidateMessageSize_Disabled(t *testing.T) {
	gate := gateWith(t, nil) // no ceiling configured

	assert.NoError(t, gate.ValidateMessageSize(make([]byte, 10<<20)))
}

func TestGate_RateLimit_WindowRollover(t *testing.T) {
	gate := gateWith(t, func(c *config.Config) { c.RateLimitPerSecond = 3 })

	now := time.Unix(1000, 0)
	gate.limiter.now = func() time.Time { return now }

	origin := "https://example.com"
	for i := 0; i < 3; i++ {
		require.NoError(t, gate.CheckRateLimit(origin))
	}

	err := gate.CheckRateLimit(origin)
	require.Error(t, err)
	assert.True(t, errors.IsSecurity(err))
	assert.ErrorIs(t, err, errors.ErrRateLimited)

	// Still inside the window: rejected again
	now = now.Add(900 * time.Millisecond)
	assert.Error(t, gate.CheckRateLimit(origin))

	// Past the window boundary: counter resets
	now = now.Add(200 * time.Millisecond)
	assert.NoError(t, gate.CheckRateLimit(origin))
}

func TestGate_RateLimit_PerOrigin(t *testing.T) {
	gate := gateWith(t, func(c *config.Config) { c.RateLimitPerSecond = 1 })

	require.NoError(t, gate.CheckRateLimit("https://a.example.com"))
	require.NoError(t, gate.CheckRateLimit("https://b.example.com"))
	assert.Error(t, gate.CheckRateLimit("https://a.example.com"))
}

func TestGate_RateLimit_Disabled(t *testing.T) {
	gate := gateWith(t, nil) // no limit configured

	for i := 0; i < 10_000; i++ {
		require.NoError(t, gate.CheckRateLimit("https://example.com"))
	}
}

func TestGate_ValidateIncoming_Order(t *testing.T) {
	gate := gateWith(t, func(c *config.Config) {
		c.RateLimitPerSecond = 1
		c.MaxMessageSize = 32
	})

	raw := make([]byte, 16)

	// Disallowed origin fails before the rate counter is touched
	err := gate.ValidateIncoming("https://evil.com", "https://evil.com", raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrOriginNotAllowed)
	assert.Empty(t, gate.limiter.origins, "rate counter must not count a rejected origin")

	// Allowed origin passes all checks
	require.NoError(t, gate.ValidateIncoming("https://example.com", "https://example.com", raw))

	// Second message in the window is rate limited
	err = gate.ValidateIncoming("https://example.com", "https://example.com", raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRateLimited)
}

func TestGate_ValidateIncoming_SizeAfterRate(t *testing.T) {
	gate := gateWith(t, func(c *config.Config) { c.MaxMessageSize = 8 })

	err := gate.ValidateIncoming("https://example.com", "https://example.com", make([]byte, 9))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMessageTooLarge)
}

func TestGate_ValidateIncoming_OriginSpoof(t *testing.T) {
	gate := gateWith(t, nil)

	err := gate.ValidateIncoming("https://example.com", "https://js.stripe.com", nil)
	require.Error(t, err)
	assert.True(t, errors.IsSecurity(err))
	assert.ErrorIs(t, err, errors.ErrOriginMismatch)
}

func TestGate_Reset(t *testing.T) {
	gate := gateWith(t, func(c *config.Config) { c.RateLimitPerSecond = 1 })

	require.NoError(t, gate.CheckRateLimit("https://example.com"))
	require.Error(t, gate.CheckRateLimit("https://example.com"))

	gate.Reset()
	assert.NoError(t, gate.CheckRateLimit("https://example.com"))
}
