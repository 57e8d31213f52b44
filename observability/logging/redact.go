package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces secret material in log output.
const RedactedValue = "[REDACTED]"

// Secret returns an attribute whose value is always masked. Used for the
// keystore passphrase and the auth HMAC secret, which must never reach the
// logs even at debug level. Empty values pass through so absence stays
// visible.
func Secret(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, "")
	}
	return slog.String(key, RedactedValue)
}

// Endpoint renders an RPC endpoint with credentials stripped. Hosted
// providers embed API keys in the userinfo, query, or final path segment
// of the URL.
func Endpoint(key, raw string) slog.Attr {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return slog.String(key, RedactedValue)
	}
	parsed.User = nil
	parsed.RawQuery = ""
	out := parsed.String()
	if i := strings.LastIndexByte(out, '/'); i >= 0 && len(out)-i-1 >= 20 {
		out = out[:i+1] + RedactedValue
	}
	return slog.String(key, out)
}
