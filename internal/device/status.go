package device

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// baseDelay is the starting reconnect interval (before jitter).
	baseDelay = 500 * time.Millisecond

	// maxDelay caps the reconnect interval.
	maxDelay = 30 * time.Second
)

// connectionEvent is the JSON shape of a gateway event frame. Frames with a
// type other than "connection" are ignored.
type connectionEvent struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

// WatchConnection subscribes to the gateway's WebSocket event stream and
// invokes callback whenever the wearable's connection state changes. It blocks
// until ctx is cancelled, reconnecting with exponential backoff if the stream
// drops. The backoff lives here, in link observation — sync attempts
// themselves stay single-shot.
func (a *Adapter) WatchConnection(ctx context.Context, callback func(connected bool)) error {
	wsURL := websocketURL(a.baseURL) + "/api/v1/events"

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := a.streamEvents(ctx, wsURL, callback)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Error("gateway event stream ended, reconnecting", "error", err)

		delay := backoffDelay(attempt)
		if attempt < 6 {
			attempt++
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// streamEvents runs one WebSocket session: dial, read frames, dispatch
// connection events. Returns when the connection drops or ctx is cancelled.
func (a *Adapter) streamEvents(ctx context.Context, wsURL string, callback func(connected bool)) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dialling gateway events at %q: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	// gorilla reads don't honour ctx; closing the conn unblocks ReadJSON.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	a.log.Debug("gateway event stream connected", "url", wsURL)

	for {
		var ev connectionEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("reading gateway event: %w", err)
		}
		if ev.Type != "connection" {
			continue
		}
		a.log.Debug("device connection event", "connected", ev.Connected)
		callback(ev.Connected)
	}
}

// websocketURL converts the gateway's http(s) base URL to ws(s).
func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

// backoffDelay computes the delay for a given attempt index, applying
// exponential growth with 50–100 % jitter.
func backoffDelay(attempt int) time.Duration {
	delay := baseDelay * (1 << attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	// Jitter: uniform in [delay/2, delay).
	jitter := time.Duration(rand.Int63n(int64(delay) / 2)) //nolint:gosec // jitter does not need crypto/rand
	return delay/2 + jitter
}
