package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openbotkit/botflow/pkg/logger"
)

// RasaResolver classifies utterances against one or more Rasa-compatible
// model servers, selected by model id. Model id "0" is the default server;
// an unknown id falls back to the first configured server so a bot with a
// single server does not have to label it.
type RasaResolver struct {
	servers map[string]string // model id -> base URL
	first   string
	client  *http.Client
}

func NewRasaResolver(servers map[string]string) *RasaResolver {
	first := ""
	if url, ok := servers[DefaultModelID]; ok {
		first = url
	} else {
		for _, url := range servers {
			first = url
			break
		}
	}
	return &RasaResolver{
		servers: servers,
		first:   first,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type rasaParseResponse struct {
	Intent struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"intent"`
	Entities []Entity `json:"entities"`
}

func (r *RasaResolver) Classify(ctx context.Context, modelID, text string) (Intent, error) {
	base, ok := r.servers[modelID]
	if !ok {
		base = r.first
	}
	if base == "" {
		return Intent{}, fmt.Errorf("no nlu server configured")
	}

	payload, err := json.Marshal(map[string]string{"text": NormalizeUmlauts(text)})
	if err != nil {
		return Intent{}, fmt.Errorf("encode parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/model/parse", bytes.NewReader(payload))
	if err != nil {
		return Intent{}, fmt.Errorf("build parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Intent{}, fmt.Errorf("nlu request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Intent{}, fmt.Errorf("nlu HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed rasaParseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Intent{}, fmt.Errorf("decode parse response: %w", err)
	}

	intent := Intent{
		Keyword:    parsed.Intent.Name,
		Confidence: parsed.Intent.Confidence,
		Entities:   parsed.Entities,
	}
	logger.DebugCF("nlu", "Classified utterance", map[string]interface{}{
		"model":      modelID,
		"intent":     intent.Keyword,
		"confidence": intent.Confidence,
		"entities":   len(intent.Entities),
	})
	return intent, nil
}
