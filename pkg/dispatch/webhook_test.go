package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/nlu"
)

func TestWebhookTrigger(t *testing.T) {
	var got triggerPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	entities := []nlu.Entity{{Name: "subject", Value: "math"}}
	if err := w.Trigger(context.Background(), "assignMentor", "telegram:42", entities); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	if got.Event != "trigger" || got.FunctionID != "assignMentor" || got.Channel != "telegram:42" {
		t.Errorf("payload = %+v", got)
	}
	if len(got.Entities) != 1 || got.Entities[0].Value != "math" {
		t.Errorf("entities = %+v", got.Entities)
	}
}

func TestWebhookForward(t *testing.T) {
	var got triggerPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	msg := bus.InboundMessage{SessionKey: "slack:c1", Content: "yes please"}
	intent := nlu.Intent{Keyword: "confirm", Confidence: 0.93}

	if err := w.Forward(context.Background(), "collectFeedback", msg, intent); err != nil {
		t.Fatalf("forward: %v", err)
	}

	if got.Event != "message" || got.FunctionID != "collectFeedback" {
		t.Errorf("payload = %+v", got)
	}
	if got.Text != "yes please" || got.Intent != "confirm" || got.Confidence != 0.93 {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	if err := w.Trigger(context.Background(), "fn", "ch", nil); err == nil {
		t.Error("expected error on HTTP 502")
	}
}
