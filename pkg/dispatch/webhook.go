package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/logger"
	"github.com/openbotkit/botflow/pkg/nlu"
)

// Webhook posts triggered functions and function-context messages to an
// external executor as JSON.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type triggerPayload struct {
	Event      string       `json:"event"`
	FunctionID string       `json:"function_id"`
	Channel    string       `json:"channel"`
	Entities   []nlu.Entity `json:"entities,omitempty"`
	Text       string       `json:"text,omitempty"`
	Intent     string       `json:"intent,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
}

func (w *Webhook) post(ctx context.Context, p triggerPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.Event, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", p.Event, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", p.Event, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dispatch %s: HTTP %d", p.Event, resp.StatusCode)
	}
	return nil
}

func (w *Webhook) Trigger(ctx context.Context, functionID, channelKey string, entities []nlu.Entity) error {
	logger.InfoCF("dispatch", "Triggering bot function", map[string]interface{}{
		"function": functionID,
		"channel":  channelKey,
	})
	return w.post(ctx, triggerPayload{
		Event:      "trigger",
		FunctionID: functionID,
		Channel:    channelKey,
		Entities:   entities,
	})
}

func (w *Webhook) Forward(ctx context.Context, functionID string, msg bus.InboundMessage, intent nlu.Intent) error {
	return w.post(ctx, triggerPayload{
		Event:      "message",
		FunctionID: functionID,
		Channel:    msg.SessionKey,
		Entities:   intent.Entities,
		Text:       msg.Content,
		Intent:     intent.Keyword,
		Confidence: intent.Confidence,
	})
}
