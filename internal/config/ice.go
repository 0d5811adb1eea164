package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "US_ICE_SERVERS_JSON"

	envStunURLs       = "US_STUN_URLS"
	envTurnURLs       = "US_TURN_URLS"
	envTurnUsername   = "US_TURN_USERNAME"
	envTurnCredential = "US_TURN_CREDENTIAL"
)

// parseICEServersFromValues resolves the ICE server list handed to clients at
// /webrtc/ice. The full JSON form wins when set; otherwise the STUN/TURN
// shorthand vars are combined. The server itself never dials these.
func parseICEServersFromValues(jsonBlob, stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	if blob := strings.TrimSpace(jsonBlob); blob != "" {
		return parseICEServersJSON(blob)
	}
	return parseICEShorthand(stunURLs, turnURLs, turnUsername, turnCredential)
}

func parseICEServersJSON(blob string) ([]webrtc.ICEServer, error) {
	var entries []struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal([]byte(blob), &entries); err != nil {
		return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
	}

	out := make([]webrtc.ICEServer, 0, len(entries))
	for i, entry := range entries {
		urls, err := decodeURLList(entry.URLs)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", envICEServersJSON, i, err)
		}

		server := webrtc.ICEServer{
			URLs:     urls,
			Username: strings.TrimSpace(entry.Username),
		}
		if cred := strings.TrimSpace(entry.Credential); cred != "" {
			server.Credential = cred
		}

		if err := checkICEServer(server); err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", envICEServersJSON, i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

// decodeURLList accepts both forms browsers accept for "urls": a single
// string or a list of strings.
func decodeURLList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, errors.New("urls must be a string or a list of strings")
		}
		list = []string{single}
	}

	out := make([]string, 0, len(list))
	for _, u := range list {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

// parseICEShorthand builds up to two servers from the comma-separated
// US_STUN_URLS / US_TURN_URLS vars.
func parseICEShorthand(stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	var out []webrtc.ICEServer

	if stun := splitCommaSeparated(stunURLs); len(stun) > 0 {
		server := webrtc.ICEServer{URLs: stun}
		if err := checkICEServer(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		out = append(out, server)
	}

	if turn := splitCommaSeparated(turnURLs); len(turn) > 0 {
		server := webrtc.ICEServer{
			URLs:     turn,
			Username: strings.TrimSpace(turnUsername),
		}
		if cred := strings.TrimSpace(turnCredential); cred != "" {
			server.Credential = cred
		}
		if err := checkICEServer(server); err != nil {
			return nil, fmt.Errorf("%s (with %s/%s): %w", envTurnURLs, envTurnUsername, envTurnCredential, err)
		}
		out = append(out, server)
	}

	return out, nil
}

func checkICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("ice server has no urls")
	}

	needsCreds := false
	for _, u := range server.URLs {
		scheme, _, ok := strings.Cut(u, ":")
		if !ok {
			return fmt.Errorf("malformed ice url %q", u)
		}
		switch scheme {
		case "stun", "stuns":
		case "turn", "turns":
			needsCreds = true
		default:
			return fmt.Errorf("ice url %q: scheme %q not supported", u, scheme)
		}
	}

	if needsCreds {
		cred, _ := server.Credential.(string)
		if strings.TrimSpace(server.Username) == "" || strings.TrimSpace(cred) == "" {
			return errors.New("turn urls require username and credential")
		}
	}
	return nil
}

func splitCommaSeparated(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
