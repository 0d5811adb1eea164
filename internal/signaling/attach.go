package signaling

import (
	"encoding/json"

	"github.com/Muhammd-hafeef-th/Us/internal/transport"
)

// HandleConnect implements transport.Handler. It binds the engine's event
// handlers on the connection's emitter before registering the participant, so
// no frame can arrive ahead of its handler.
func (e *Engine) HandleConnect(c *transport.Conn) {
	id := c.ID()
	c.On(EventJoin, func(raw json.RawMessage) { e.Join(id, raw) })
	c.On(EventMessage, func(raw json.RawMessage) { e.Message(id, raw) })
	c.On(EventSignal, func(raw json.RawMessage) { e.Signal(id, raw) })
	c.On(EventLeave, func(raw json.RawMessage) { e.Leave(id, raw) })
	c.On(EventReport, func(raw json.RawMessage) { e.Report(id, raw) })

	e.Connect(id, c)
}

// HandleDisconnect implements transport.Handler.
func (e *Engine) HandleDisconnect(id string) {
	e.Disconnect(id)
}
