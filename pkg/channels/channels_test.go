package channels

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openbotkit/botflow/pkg/bus"
)

func TestIsAllowed(t *testing.T) {
	broker := bus.NewMessageBus()
	defer broker.Close()

	open := NewBaseChannel("test", broker, nil)
	if !open.IsAllowed("anyone") {
		t.Error("empty allowlist must allow everyone")
	}

	restricted := NewBaseChannel("test", broker, []string{"123", "alice"})
	cases := []struct {
		sender string
		want   bool
	}{
		{"123", true},
		{"456|alice", true}, // composite id matches on the username part
		{"456", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := restricted.IsAllowed(tc.sender); got != tc.want {
			t.Errorf("IsAllowed(%q) = %v, want %v", tc.sender, got, tc.want)
		}
	}
}

func TestPublishFillsChannelFields(t *testing.T) {
	broker := bus.NewMessageBus()
	defer broker.Close()

	base := NewBaseChannel("telegram", broker, nil)
	base.Publish(bus.InboundMessage{ChatID: "42", SenderID: "7", Content: "hi", MessageID: "m1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := broker.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected a message")
	}
	if msg.Channel != "telegram" || msg.SessionKey != "telegram:42" {
		t.Errorf("channel/key = %q/%q", msg.Channel, msg.SessionKey)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp must be filled in")
	}
}

func TestSplitOptions(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"yes,no", 2},
		{" yes , ,no ", 2},
	}
	for _, tc := range cases {
		if got := splitOptions(tc.in); len(got) != tc.want {
			t.Errorf("splitOptions(%q) = %v, want %d options", tc.in, got, tc.want)
		}
	}
}

// stubChannel records sends for manager routing tests.
type stubChannel struct {
	name string
	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func (s *stubChannel) Name() string                    { return s.name }
func (s *stubChannel) Start(context.Context) error     { return nil }
func (s *stubChannel) Stop(context.Context) error      { return nil }
func (s *stubChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubChannel) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestManagerRoutesOutboundByChannel(t *testing.T) {
	broker := bus.NewMessageBus()
	defer broker.Close()

	telegram := &stubChannel{name: "telegram"}
	slack := &stubChannel{name: "slack"}

	m := NewManager(broker)
	m.Register(telegram)
	m.Register(slack)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	broker.PublishOutbound(bus.OutboundMessage{Channel: "slack", ChatID: "c1", Content: "one"})
	broker.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: "42", Content: "two"})
	broker.PublishOutbound(bus.OutboundMessage{Channel: "ghost", ChatID: "x", Content: "dropped"})

	deadline := time.After(2 * time.Second)
	for telegram.sentCount() < 1 || slack.sentCount() < 1 {
		select {
		case <-deadline:
			t.Fatalf("routing incomplete: telegram=%d slack=%d", telegram.sentCount(), slack.sentCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	slack.mu.Lock()
	defer slack.mu.Unlock()
	if slack.sent[0].Content != "one" {
		t.Errorf("slack got %q", slack.sent[0].Content)
	}
}
