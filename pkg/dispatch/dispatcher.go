package dispatch

import (
	"context"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/nlu"
)

// Dispatcher hands triggered bot actions to an external executor. The engine
// only announces; it never waits for the function to finish.
type Dispatcher interface {
	// Trigger fires when a conversation node with a function id is entered.
	Trigger(ctx context.Context, functionID, channelKey string, entities []nlu.Entity) error

	// Forward relays a message received while the function owns the channel.
	Forward(ctx context.Context, functionID string, msg bus.InboundMessage, intent nlu.Intent) error
}

// Nop discards all dispatches. Used when no executor is configured and in
// tests.
type Nop struct{}

func (Nop) Trigger(context.Context, string, string, []nlu.Entity) error { return nil }

func (Nop) Forward(context.Context, string, bus.InboundMessage, nlu.Intent) error { return nil }
