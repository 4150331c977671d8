// Package config loads plugin configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
)

// InboundPolicy controls how the plugin reacts to inbound calls.
type InboundPolicy string

const (
	// InboundDisabled ignores inbound calls entirely.
	InboundDisabled InboundPolicy = "disabled"
	// InboundAllowlist answers inbound calls only from numbers in AllowFrom.
	InboundAllowlist InboundPolicy = "allowlist"
)

// e164 matches international phone numbers in E.164 form.
var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

type Config struct {
	// BridgeURL is the base URL of the asterisk-api bridge service.
	BridgeURL string
	// BridgeAPIKey is sent as a bearer token when non-empty.
	BridgeAPIKey string

	// TTSBaseURL points at an OpenAI-compatible speech endpoint for local
	// synthesis; empty disables the speech service.
	TTSBaseURL string

	// FromNumber and ToNumber are the default caller/callee identities for
	// outbound calls, in E.164 form. Both optional.
	FromNumber string
	ToNumber   string

	// DefaultEndpoint is dialed when no trunk and no explicit endpoint is
	// given.
	DefaultEndpoint string
	// OutboundTrunk is an endpoint template with a {number} placeholder, e.g.
	// "PJSIP/{number}@provider".
	OutboundTrunk string

	InboundPolicy InboundPolicy
	// AllowFrom lists E.164 numbers accepted under the allowlist policy.
	AllowFrom []string

	// ReconnectDelay overrides the event-stream reconnect delay; zero keeps
	// the client default.
	ReconnectDelay time.Duration
}

// LoadFromEnv reads PBXLINK_* variables, applies defaults, and validates.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		BridgeURL:       envOr("PBXLINK_BRIDGE_URL", "http://localhost:3456"),
		BridgeAPIKey:    strings.TrimSpace(os.Getenv("PBXLINK_BRIDGE_API_KEY")),
		TTSBaseURL:      strings.TrimSpace(os.Getenv("PBXLINK_TTS_BASE_URL")),
		FromNumber:      strings.TrimSpace(os.Getenv("PBXLINK_FROM_NUMBER")),
		ToNumber:        strings.TrimSpace(os.Getenv("PBXLINK_TO_NUMBER")),
		DefaultEndpoint: envOr("PBXLINK_DEFAULT_ENDPOINT", "PJSIP/101"),
		OutboundTrunk:   strings.TrimSpace(os.Getenv("PBXLINK_OUTBOUND_TRUNK")),
		InboundPolicy:   InboundPolicy(envOr("PBXLINK_INBOUND_POLICY", string(InboundDisabled))),
		AllowFrom:       splitCSV(os.Getenv("PBXLINK_ALLOW_FROM")),
		ReconnectDelay:  envDurationOr("PBXLINK_RECONNECT_DELAY", 0),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BridgeURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("PBXLINK_BRIDGE_URL %q is not a valid URL", c.BridgeURL)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("PBXLINK_BRIDGE_URL scheme must be http(s) or ws(s)")
	}

	if c.TTSBaseURL != "" {
		tu, err := url.Parse(c.TTSBaseURL)
		if err != nil || tu.Host == "" || (tu.Scheme != "http" && tu.Scheme != "https") {
			return fmt.Errorf("PBXLINK_TTS_BASE_URL %q is not a valid http(s) URL", c.TTSBaseURL)
		}
	}

	if c.FromNumber != "" && !e164.MatchString(c.FromNumber) {
		return fmt.Errorf("PBXLINK_FROM_NUMBER %q is not E.164 (+15551234567)", c.FromNumber)
	}
	if c.ToNumber != "" && !e164.MatchString(c.ToNumber) {
		return fmt.Errorf("PBXLINK_TO_NUMBER %q is not E.164 (+15551234567)", c.ToNumber)
	}

	if strings.TrimSpace(c.DefaultEndpoint) == "" {
		return fmt.Errorf("PBXLINK_DEFAULT_ENDPOINT must not be empty")
	}
	if c.OutboundTrunk != "" && !strings.Contains(c.OutboundTrunk, "{number}") {
		return fmt.Errorf("PBXLINK_OUTBOUND_TRUNK must contain a {number} placeholder")
	}

	switch c.InboundPolicy {
	case InboundDisabled, InboundAllowlist:
	default:
		return fmt.Errorf("PBXLINK_INBOUND_POLICY must be one of disabled|allowlist")
	}
	for _, n := range c.AllowFrom {
		if !e164.MatchString(n) {
			return fmt.Errorf("PBXLINK_ALLOW_FROM entry %q is not E.164", n)
		}
	}

	if c.ReconnectDelay < 0 {
		return fmt.Errorf("PBXLINK_RECONNECT_DELAY must be >= 0")
	}
	return nil
}

// TrunkEndpoint resolves the dial endpoint for a destination number: the
// trunk template with {number} substituted when a trunk is configured,
// otherwise the default endpoint.
func (c *Config) TrunkEndpoint(number string) string {
	if c.OutboundTrunk != "" && number != "" {
		return strings.ReplaceAll(c.OutboundTrunk, "{number}", number)
	}
	return c.DefaultEndpoint
}

// InboundAllowed reports whether a call from the given number should be
// answered under the configured policy.
func (c *Config) InboundAllowed(number string) bool {
	if c.InboundPolicy != InboundAllowlist {
		return false
	}
	for _, n := range c.AllowFrom {
		if n == number {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
