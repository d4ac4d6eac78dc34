package channels

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/openbotkit/botflow/pkg/bus"
)

// Channel is one platform adapter: it normalizes native events into
// bus.InboundMessage and delivers outbound messages back to the platform.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// BaseChannel carries the pieces every adapter shares: the platform name,
// the broker to publish into, the sender allowlist, and the running flag.
type BaseChannel struct {
	name      string
	publisher bus.Publisher
	allowFrom []string
	running   atomic.Bool
}

func NewBaseChannel(name string, publisher bus.Publisher, allowFrom []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		publisher: publisher,
		allowFrom: allowFrom,
	}
}

func (b *BaseChannel) Name() string { return b.name }

func (b *BaseChannel) setRunning(v bool) { b.running.Store(v) }

func (b *BaseChannel) IsRunning() bool { return b.running.Load() }

// IsAllowed checks the sender against the allowlist. An empty list allows
// everyone. Composite sender ids ("123|username") match on either part.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, allowed := range b.allowFrom {
		if allowed == senderID {
			return true
		}
		for _, part := range strings.Split(senderID, "|") {
			if allowed == part {
				return true
			}
		}
	}
	return false
}

// Publish normalizes and hands the message to the broker: channel name,
// session key and timestamp are filled in here so adapters cannot disagree
// about the key format.
func (b *BaseChannel) Publish(msg bus.InboundMessage) {
	msg.Channel = b.name
	msg.SessionKey = b.name + ":" + msg.ChatID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	b.publisher.PublishInbound(msg)
}
