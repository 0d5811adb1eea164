// Package origin normalizes and checks browser Origin headers for the
// WebSocket endpoint.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Origin is a validated browser Origin header value.
type Origin struct {
	// Value is the normalized origin, scheme://host[:port] with default ports
	// folded away, or the literal "null" for opaque origins.
	Value string
	// Host is the host[:port] portion used for same-host comparisons; empty
	// for "null".
	Host string
}

// Normalize parses a raw Origin header. Only http and https origins (and the
// special value "null") are accepted; userinfo, query, fragment, and non-root
// paths all fail.
func Normalize(header string) (Origin, bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return Origin{}, false
	}
	if trimmed == "null" {
		return Origin{Value: "null"}, true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Origin{}, false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return Origin{}, false
	}
	if u.Path != "" && u.Path != "/" {
		return Origin{}, false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Origin{}, false
	}

	host, ok := normalizeHost(u.Host, scheme)
	if !ok {
		return Origin{}, false
	}
	return Origin{Value: scheme + "://" + host, Host: host}, true
}

// Allowed reports whether the origin may open a connection against
// requestHost.
//
// With a non-empty allowlist, entries must be "*" or normalized origin values.
// With an empty allowlist the policy is same host:port; the scheme is
// deliberately not compared because a TLS-terminating proxy in front of the
// server makes the request look like HTTP while the browser origin is HTTPS.
func (o Origin) Allowed(requestHost string, allowlist []string) bool {
	if len(allowlist) > 0 {
		for _, allowed := range allowlist {
			if allowed == "*" || allowed == o.Value {
				return true
			}
		}
		return false
	}

	scheme := ""
	switch {
	case strings.HasPrefix(o.Value, "http://"):
		scheme = "http"
	case strings.HasPrefix(o.Value, "https://"):
		scheme = "https"
	default:
		// "null" never matches a host-based request.
		return false
	}

	reqHost, ok := normalizeHost(strings.ToLower(strings.TrimSpace(requestHost)), scheme)
	if !ok {
		return false
	}
	return o.Host == reqHost
}

// normalizeHost canonicalizes an authority host[:port]: lowercased hostname,
// brackets around IPv6 literals, and the scheme's default port removed.
func normalizeHost(authority, scheme string) (string, bool) {
	hostname, rawPort, ok := splitAuthority(authority)
	if !ok {
		return "", false
	}

	hostname = strings.ToLower(hostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitAuthority splits host[:port]. IPv6 literals must be bracketed; the
// returned hostname has its brackets removed and the port is not validated.
func splitAuthority(raw string) (hostname, port string, ok bool) {
	if raw == "" {
		return "", "", false
	}

	if strings.HasPrefix(raw, "[") {
		end := strings.IndexByte(raw, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = raw[1:end]
		rest := raw[end+1:]
		switch {
		case rest == "":
			return hostname, "", true
		case strings.HasPrefix(rest, ":") && len(rest) > 1:
			return hostname, rest[1:], true
		default:
			return "", "", false
		}
	}

	switch strings.Count(raw, ":") {
	case 0:
		return raw, "", true
	case 1:
		i := strings.IndexByte(raw, ':')
		if i == 0 || i == len(raw)-1 {
			return "", "", false
		}
		return raw[:i], raw[i+1:], true
	default:
		return "", "", false
	}
}
