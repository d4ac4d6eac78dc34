package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/nlu"
)

// failingResolver errors out on "boom" and delegates everything else.
type failingResolver struct {
	next nlu.Resolver
}

func (r failingResolver) Classify(ctx context.Context, modelID, text string) (nlu.Intent, error) {
	if text == "boom" {
		return nlu.Intent{}, errors.New("classifier unavailable")
	}
	return r.next.Classify(ctx, modelID, text)
}

func startLoop(t *testing.T, env *testEnv) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	loop := NewLoop(env.engine, env.broker)
	go loop.Run(ctx)
}

func inbound(seq int, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:    "telegram",
		ChatID:     "42",
		SenderID:   "7",
		SessionKey: testKey,
		Content:    text,
		MessageID:  "loop-" + string(rune('a'+seq)),
		Timestamp:  time.Now(),
	}
}

func waitReplies(t *testing.T, env *testEnv, n int) []bus.OutboundMessage {
	t.Helper()
	var out []bus.OutboundMessage
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		msg, ok := env.broker.SubscribeOutbound(ctx)
		cancel()
		if ok {
			out = append(out, msg)
			continue
		}
		select {
		case <-deadline:
			t.Fatalf("timed out with %d of %d replies", len(out), n)
		default:
		}
	}
	return out
}

func TestLoopProcessesTurnsInOrder(t *testing.T) {
	env := newTestEnv(t, greetingIntents)
	startLoop(t, env)

	env.broker.PublishInbound(inbound(0, "hello"))
	env.broker.PublishInbound(inbound(1, "bye"))

	out := waitReplies(t, env, 2)
	if out[0].Content != "Hi Ada!" || out[1].Content != "Goodbye!" {
		t.Errorf("replies out of order: %v", out)
	}
}

func TestLoopDropsMalformedMessages(t *testing.T) {
	env := newTestEnv(t, greetingIntents)
	startLoop(t, env)

	bad := inbound(0, "hello")
	bad.ChatID = ""
	env.broker.PublishInbound(bad)
	env.broker.PublishInbound(inbound(1, "hello"))

	out := waitReplies(t, env, 1)
	if out[0].Content != "Hi Ada!" {
		t.Errorf("reply = %q", out[0].Content)
	}
}

func TestLoopSurvivesFailingTurns(t *testing.T) {
	env := newTestEnv(t, greetingIntents)
	env.engine.resolver = failingResolver{next: env.engine.resolver}
	startLoop(t, env)

	// The classifier error fails the first turn; the worker must keep
	// serving the channel afterwards.
	env.broker.PublishInbound(inbound(0, "boom"))
	env.broker.PublishInbound(inbound(1, "hello"))

	out := waitReplies(t, env, 1)
	if out[0].Content != "Hi Ada!" {
		t.Errorf("reply = %q", out[0].Content)
	}
}
