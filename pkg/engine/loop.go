package engine

import (
	"context"
	"sync"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/logger"
)

// Loop consumes the inbound side of the broker and feeds every session's
// turns to a worker owning that session key. Turns for one channel are
// strictly serialized; different channels run in parallel. A failing turn is
// logged and never stops the loop or touches another channel.
type Loop struct {
	engine *Engine
	broker bus.Broker

	mu    sync.Mutex
	lanes map[string]chan laneItem
}

type laneItem struct {
	msg     bus.InboundMessage
	release bool
}

func NewLoop(e *Engine, broker bus.Broker) *Loop {
	return &Loop{
		engine: e,
		broker: broker,
		lanes:  make(map[string]chan laneItem),
	}
}

func (l *Loop) Run(ctx context.Context) error {
	for {
		msg, ok := l.broker.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		if err := msg.Validate(); err != nil {
			logger.WarnCF("engine", "Rejected inbound message", map[string]interface{}{
				"channel": msg.SessionKey,
				"error":   err.Error(),
			})
			continue
		}
		select {
		case l.laneFor(ctx, msg.SessionKey) <- laneItem{msg: msg}:
		case <-ctx.Done():
			return nil
		}
	}
}

// ReleaseFunction returns a channel from function-context to the normal
// conversation flow, serialized like any other turn for that channel.
func (l *Loop) ReleaseFunction(ctx context.Context, sessionKey string) {
	select {
	case l.laneFor(ctx, sessionKey) <- laneItem{msg: bus.InboundMessage{SessionKey: sessionKey}, release: true}:
	case <-ctx.Done():
	}
}

func (l *Loop) laneFor(ctx context.Context, key string) chan laneItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lane, ok := l.lanes[key]; ok {
		return lane
	}
	lane := make(chan laneItem, 16)
	l.lanes[key] = lane
	go l.work(ctx, key, lane)
	return lane
}

func (l *Loop) work(ctx context.Context, key string, lane chan laneItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-lane:
			l.processItem(ctx, key, item)
		}
	}
}

// processItem runs one turn with the per-message error boundary: errors and
// panics are logged, the worker keeps serving its channel.
func (l *Loop) processItem(ctx context.Context, key string, item laneItem) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("engine", "Turn panicked", map[string]interface{}{
				"channel": key,
				"panic":   r,
			})
		}
	}()

	var err error
	if item.release {
		err = l.engine.ReleaseFunction(ctx, key)
	} else {
		err = l.engine.ProcessMessage(ctx, item.msg)
	}
	if err != nil {
		logger.ErrorCF("engine", "Turn failed", map[string]interface{}{
			"channel": key,
			"error":   err.Error(),
		})
	}
}
