package transport

import "time"

// tokenBucket limits inbound message rate per connection. Capacity equals the
// per-second rate, so a client may burst one second's worth of messages before
// throttling bites.
type tokenBucket struct {
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

func newTokenBucket(messagesPerSecond int, now time.Time) *tokenBucket {
	rate := float64(messagesPerSecond)
	return &tokenBucket{
		rate:     rate,
		capacity: rate,
		tokens:   rate,
		last:     now,
	}
}

func (tb *tokenBucket) Allow(now time.Time) bool {
	elapsed := now.Sub(tb.last).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.last = now
	}

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}
