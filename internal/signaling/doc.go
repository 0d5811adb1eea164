// Package signaling is the matching and session-relay engine: it tracks
// connected participants, pairs them on request, runs the session lifecycle,
// and forwards chat and opaque negotiation payloads between session members.
//
// The engine is transport-agnostic at its core (everything outbound goes
// through the Sender interface) and plugs into the WebSocket transport via
// the transport.Handler methods in attach.go.
package signaling
