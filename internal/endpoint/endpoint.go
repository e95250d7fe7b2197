package endpoint

import (
	"net/url"
	"os"
	"strings"
)

const (
	// EnvAPIBaseURL names the environment variable holding the HTTP API base address.
	EnvAPIBaseURL = "NOTIFY_API_URL"

	// DevelopmentAPIBase is used when no usable API base is configured.
	DevelopmentAPIBase = "http://localhost:3000"

	// Path is the fixed notification socket path.
	Path = "/ws/notifications"

	// IdentityParam is the query parameter carrying the session identity.
	IdentityParam = "userId"
)

// Resolve returns the real-time endpoint for identity derived from apiBase.
func Resolve(apiBase, identity string) string {
	base, ok := parseBase(apiBase)
	if !ok {
		base, _ = parseBase(DevelopmentAPIBase)
	}

	u := url.URL{
		Scheme:   base.Scheme,
		Host:     base.Host,
		Path:     Path,
		RawQuery: url.Values{IdentityParam: []string{identity}}.Encode(),
	}
	return u.String()
}

// ResolveEnv resolves against override, or against the EnvAPIBaseURL environment
// variable when override is empty. The environment is read on every call.
func ResolveEnv(override, identity string) string {
	base := strings.TrimSpace(override)
	if base == "" {
		base = os.Getenv(EnvAPIBaseURL)
	}
	return Resolve(base, identity)
}

// parseBase parses raw and maps its scheme to the socket equivalent.
func parseBase(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, false
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, false
	}

	return u, true
}
