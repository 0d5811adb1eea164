package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chuckpreslar/emission"
	"github.com/gorilla/websocket"

	"github.com/Muhammd-hafeef-th/Us/internal/metrics"
)

const closeWriteWait = 1 * time.Second

// envelope is the wire frame: a named event plus its payload. Data stays raw
// here; the engine's handlers decode it per event.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func parseEnvelope(data []byte) (envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return envelope{}, err
	}
	if env.Event == "" {
		return envelope{}, fmt.Errorf("missing event name")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return envelope{}, fmt.Errorf("unexpected trailing data")
	}
	return env, nil
}

// Conn is one WebSocket connection with named-event dispatch.
//
// The embedded emitter carries the inbound direction: the read pump EmitSyncs
// each envelope event, and the engine binds handlers with On at connect time.
// EmitSync keeps dispatch on the read goroutine, which is what gives each
// connection its in-order, one-event-at-a-time handler execution. Outbound
// frames go through Send into a bounded queue drained by the write pump.
type Conn struct {
	*emission.Emitter

	id   string
	log  *slog.Logger
	sock *websocket.Conn
	opts Options
	mets *metrics.Metrics

	queue *sendQueue

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(id string, sock *websocket.Conn, opts Options, log *slog.Logger, mets *metrics.Metrics) *Conn {
	c := &Conn{
		Emitter: emission.NewEmitter(),
		id:      id,
		log:     log.With("conn", id),
		sock:    sock,
		opts:    opts,
		mets:    mets,
		queue:   newSendQueue(opts.SendQueueBytes),
		done:    make(chan struct{}),
	}
	c.RecoverWith(func(event, _ any, err error) {
		c.log.Error("panic in event handler", "event", event, "err", err)
		c.Close()
	})
	return c
}

// ID is the transport-assigned connection identity the engine keys on.
func (c *Conn) ID() string {
	return c.id
}

// Send queues an outbound event frame. Delivery is best-effort: a full queue
// or closed connection drops the frame and reports false.
func (c *Conn) Send(event string, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		c.log.Error("failed to encode outbound event", "event", event, "err", err)
		return false
	}
	frame, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		c.log.Error("failed to encode envelope", "event", event, "err", err)
		return false
	}
	if !c.queue.Enqueue(frame) {
		c.mets.Inc(metrics.SendDrops)
		return false
	}
	return true
}

// Close tears the connection down. Safe to call from any goroutine, any
// number of times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.queue.Close()
		_ = c.sock.Close()
	})
}

// readPump reads frames until the socket fails, dispatching each well-formed
// envelope synchronously. It returns when the connection is done; the caller
// owns disconnect notification.
func (c *Conn) readPump() {
	defer c.Close()

	c.sock.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.sock.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
	})

	limiter := newTokenBucket(c.opts.MaxMessagesPerSecond, time.Now())

	for {
		msgType, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		_ = c.sock.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))

		// Limit after reading so the bytes are consumed from the TCP buffer;
		// closing with unread data risks an abortive close that eats the close
		// frame.
		if !limiter.Allow(time.Now()) {
			c.mets.Inc(metrics.RateLimitDrops)
			c.log.Warn("closing connection: rate limit exceeded")
			c.writeClose(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			c.mets.Inc(metrics.ProtocolViolations)
			c.writeClose(websocket.CloseUnsupportedData, "expected text message")
			return
		}

		env, err := parseEnvelope(data)
		if err != nil {
			c.mets.Inc(metrics.ProtocolViolations)
			c.log.Debug("dropping malformed frame", "err", err)
			continue
		}
		if c.GetListenerCount(env.Event) == 0 {
			c.mets.Inc(metrics.ProtocolViolations)
			c.log.Debug("dropping unknown event", "event", env.Event)
			continue
		}

		c.EmitSync(env.Event, env.Data)
	}
}

// writePump owns all data writes on the socket: queued frames plus periodic
// pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.queue.Ready():
			for {
				frame, ok := c.queue.TryDequeue()
				if !ok {
					break
				}
				_ = c.sock.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
				if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
					c.Close()
					return
				}
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeClose(code int, reason string) {
	_ = c.sock.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWriteWait))
}
