// Package security enforces the trust boundary for inbound envelopes: origin
// allow-listing (exact and wildcard-domain matching), per-origin rate limits,
// message-size ceilings, and origin-spoofing detection.
//
// The transport-reported origin is authoritative. An envelope's self-declared
// origin field is only a consistency check, never trusted alone; a mismatch
// between the two is the primary documented threat (a compromised payload
// lying about where it came from) and is rejected outright.
package security

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/saquib34/react-iframe-bridge/config"
	"github.com/saquib34/react-iframe-bridge/errors"
)

// Gate is the first thing run on every inbound envelope.
type Gate struct {
	allowedOrigins []string
	maxMessageSize int
	limiter        *rateLimiter
	logger         *slog.Logger
}

// NewGate builds a gate from configuration. The logger may be nil.
func NewGate(cfg *config.Config, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		allowedOrigins: cfg.AllowedOrigins,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimitPerSecond),
		logger:         logger,
	}
}

// ValidateOrigin reports whether origin is trusted: true when the allow-list
// contains the universal wildcard, the origin exactly matches an entry, or
// the origin's host suffix-matches a "*.domain" entry.
func (g *Gate) ValidateOrigin(origin string) bool {
	for _, entry := range g.allowedOrigins {
		if entry == config.WildcardAll {
			return true
		}
		if entry == origin {
			return true
		}
		if strings.HasPrefix(entry, "*.") && matchesWildcardDomain(origin, entry[2:]) {
			return true
		}
	}
	return false
}

// matchesWildcardDomain checks the origin's host against the domain part of a
// wildcard pattern: the bare domain itself or any subdomain of it.
func matchesWildcardDomain(origin, domain string) bool {
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// ValidateMessageSize fails when the serialized envelope exceeds the
// configured ceiling. No ceiling configured means no check. A message exactly
// at the ceiling passes.
func (g *Gate) ValidateMessageSize(raw []byte) error {
	if g.maxMessageSize <= 0 {
		return nil
	}
	if len(raw) > g.maxMessageSize {
		return errors.WrapSecurity(errors.ErrMessageTooLarge, "Gate", "ValidateMessageSize",
			fmt.Sprintf("%d bytes exceeds ceiling of %d", len(raw), g.maxMessageSize))
	}
	return nil
}

// CheckRateLimit counts one message for origin against its current window.
func (g *Gate) CheckRateLimit(origin string) error {
	return g.limiter.check(origin)
}

// ValidateIncoming is the composite check run on every inbound delivery, in
// order: origin allow-list, rate limit, size ceiling, then the cross-check
// that the envelope's self-declared origin matches the transport-reported
// one. Checks fail fast: the rate counter is never incremented for an origin
// that already failed the allow-list.
func (g *Gate) ValidateIncoming(transportOrigin, declaredOrigin string, raw []byte) error {
	if !g.ValidateOrigin(transportOrigin) {
		return errors.WrapSecurity(errors.ErrOriginNotAllowed, "Gate", "ValidateIncoming",
			fmt.Sprintf("origin %q", transportOrigin))
	}

	if err := g.CheckRateLimit(transportOrigin); err != nil {
		return err
	}

	if err := g.ValidateMessageSize(raw); err != nil {
		return err
	}

	if declaredOrigin != transportOrigin {
		g.logger.Warn("declared origin mismatch",
			"declared", declaredOrigin,
			"transport", transportOrigin)
		return errors.WrapSecurity(errors.ErrOriginMismatch, "Gate", "ValidateIncoming",
			fmt.Sprintf("declared %q vs transport %q", declaredOrigin, transportOrigin))
	}

	return nil
}

// Reset clears rate-limit state. Called on teardown.
func (g *Gate) Reset() {
	g.limiter.reset()
}
