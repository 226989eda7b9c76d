package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/magarcia/qwbp/internal/session"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// Compile-time interface check.
var _ session.DataChannel = (*dataChannel)(nil)

// dataChannel wraps a pion DataChannel with buffered-amount
// backpressure on Send.
type dataChannel struct {
	raw       *webrtc.DataChannel
	sendReady chan struct{}
}

func wrapChannel(raw *webrtc.DataChannel) *dataChannel {
	ch := &dataChannel{
		raw:       raw,
		sendReady: make(chan struct{}, 1),
	}

	raw.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case ch.sendReady <- struct{}{}:
		default:
		}
	})

	return ch
}

func (c *dataChannel) Label() string { return c.raw.Label() }

// Send writes one message, blocking while the channel buffer is above
// the high-water mark or until ctx is cancelled.
func (c *dataChannel) Send(ctx context.Context, data []byte) error {
	if c.raw.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-c.sendReady:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.raw.Send(data)
}

func (c *dataChannel) OnOpen(fn func())       { c.raw.OnOpen(fn) }
func (c *dataChannel) OnClose(fn func())      { c.raw.OnClose(fn) }
func (c *dataChannel) OnError(fn func(error)) { c.raw.OnError(fn) }

func (c *dataChannel) OnMessage(fn func([]byte)) {
	c.raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *dataChannel) Close() error { return c.raw.Close() }
