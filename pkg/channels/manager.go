package channels

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/logger"
)

// Manager owns the registered platform adapters and pumps outbound messages
// from the broker to the right one.
type Manager struct {
	broker   bus.Broker
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewManager(broker bus.Broker) *Manager {
	return &Manager{
		broker:   broker,
		channels: make(map[string]Channel),
	}
}

func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts every adapter and the outbound pump. An adapter that fails
// to start fails the whole boot.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}
		logger.InfoC("channels", "Started channel: "+name)
	}
	go m.pumpOutbound(ctx)
	return nil
}

func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Channel stop failed", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
}

// pumpOutbound routes engine output to adapters. A failed or unroutable
// delivery is logged and dropped; temp files behind file messages are always
// cleaned up.
func (m *Manager) pumpOutbound(ctx context.Context) {
	for {
		msg, ok := m.broker.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		ch, found := m.Get(msg.Channel)
		if !found {
			logger.WarnCF("channels", "No adapter for outbound message", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
			})
			removeTempFile(msg)
			continue
		}

		if err := ch.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Outbound delivery failed", map[string]interface{}{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
		}
		removeTempFile(msg)
	}
}

func removeTempFile(msg bus.OutboundMessage) {
	if msg.Kind == bus.OutboundFile && msg.FilePath != "" {
		_ = os.Remove(msg.FilePath)
	}
}
