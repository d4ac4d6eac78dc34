package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Bot model file format. Nodes are keyed by a stable string id so followups
// can reference each other (including cycles) before everything is defined:
//
//	{
//	  "bot": "mentoring",
//	  "roots": ["greet", "default", "defaultX3"],
//	  "nodes": {
//	    "greet": {
//	      "keyword": "greeting",
//	      "responses": ["Hi [name]!"],
//	      "followups": {"bye": "end"}
//	    },
//	    ...
//	  }
//	}
type modelFile struct {
	Bot   string               `json:"bot"`
	Roots []string             `json:"roots"`
	Nodes map[string]modelNode `json:"nodes"`
}

type modelNode struct {
	Keyword           string            `json:"keyword"`
	Responses         []string          `json:"responses"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
	Followups         map[string]string `json:"followups,omitempty"`
	ExpectsFile       bool              `json:"expectsFile,omitempty"`
	TriggeredFunction string            `json:"triggeredFunction,omitempty"`
	NLUModel          string            `json:"nluModel,omitempty"`
	FileURL           string            `json:"fileURL,omitempty"`
	Type              string            `json:"type,omitempty"`
}

// LoadFile reads a bot model from disk and builds the immutable graph.
func LoadFile(path string) (*Graph, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read bot model: %w", err)
	}
	return Load(data)
}

// Load builds a graph from raw bot model JSON. Returns the graph and the bot
// name. All node references are resolved here; a followup or root pointing at
// an undefined node id fails the load.
func Load(data []byte) (*Graph, string, error) {
	var model modelFile
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, "", fmt.Errorf("parse bot model: %w", err)
	}
	if len(model.Nodes) == 0 {
		return nil, "", fmt.Errorf("bot model %q has no nodes", model.Bot)
	}

	b := NewBuilder()

	// Two passes: allocate every node first so edges can point anywhere.
	ids := make(map[string]NodeID, len(model.Nodes))
	for _, ref := range sortedKeys(model.Nodes) {
		mn := model.Nodes[ref]
		keyword := mn.Keyword
		if keyword == "" {
			keyword = ref
		}
		kind := KindText
		if mn.Type == string(KindInteractive) {
			kind = KindInteractive
		}
		ids[ref] = b.AddNode(Node{
			Keyword:             keyword,
			Responses:           mn.Responses,
			ErrorMessage:        mn.ErrorMessage,
			ExpectsFile:         mn.ExpectsFile,
			TriggeredFunctionID: mn.TriggeredFunction,
			NLUModelID:          mn.NLUModel,
			FileURL:             mn.FileURL,
			Kind:                kind,
		})
	}

	for _, ref := range sortedKeys(model.Nodes) {
		for key, target := range model.Nodes[ref].Followups {
			to, ok := ids[target]
			if !ok {
				return nil, "", fmt.Errorf("node %q: followup %q references undefined node %q", ref, key, target)
			}
			b.Connect(ids[ref], key, to)
		}
	}

	for _, ref := range model.Roots {
		id, ok := ids[ref]
		if !ok {
			return nil, "", fmt.Errorf("root references undefined node %q", ref)
		}
		b.AddRoot(id)
	}

	g, err := b.Build()
	if err != nil {
		return nil, "", fmt.Errorf("bot model %q: %w", model.Bot, err)
	}
	return g, model.Bot, nil
}

func sortedKeys(m map[string]modelNode) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic arena layout regardless of map iteration order.
	sort.Strings(keys)
	return keys
}
