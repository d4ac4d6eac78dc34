package graph

import "testing"

const sampleModel = `{
  "bot": "mentoring",
  "roots": ["greet", "default", "defaultX2", "upload"],
  "nodes": {
    "greet": {
      "keyword": "greeting",
      "responses": ["Hi [name]!", "Hello!"],
      "followups": {"bye": "end", "": "ask"}
    },
    "ask": {
      "keyword": "ask",
      "responses": ["What can I do for you?"],
      "type": "interactive",
      "followups": {"bye": "end"}
    },
    "end": {
      "keyword": "bye",
      "responses": ["Goodbye!"]
    },
    "upload": {
      "keyword": "submission",
      "expectsFile": true,
      "triggeredFunction": "storeSubmission",
      "responses": ["Got your file."]
    },
    "default": {
      "keyword": "default",
      "responses": ["Sorry, I did not understand that."]
    },
    "defaultX2": {
      "keyword": "defaultX2",
      "responses": ["Could you rephrase?"]
    }
  }
}`

func TestLoadSampleModel(t *testing.T) {
	g, bot, err := Load([]byte(sampleModel))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if bot != "mentoring" {
		t.Errorf("bot = %q, want mentoring", bot)
	}
	if g.Len() != 6 {
		t.Errorf("len = %d, want 6", g.Len())
	}

	greetID, ok := g.Root("greeting")
	if !ok {
		t.Fatal("missing greeting root")
	}
	greet := g.Get(greetID)
	if len(greet.Responses) != 2 {
		t.Errorf("greet responses = %d, want 2", len(greet.Responses))
	}
	if _, ok := greet.Followup(EdgeAuto); !ok {
		t.Error("greet should have an auto-advance edge")
	}

	askID, _ := greet.Followup(EdgeAuto)
	if g.Get(askID).Kind != KindInteractive {
		t.Errorf("ask kind = %q, want interactive", g.Get(askID).Kind)
	}

	uploadID, ok := g.Root("submission")
	if !ok {
		t.Fatal("missing submission root")
	}
	upload := g.Get(uploadID)
	if !upload.ExpectsFile || upload.TriggeredFunctionID != "storeSubmission" {
		t.Errorf("upload node = %+v", upload)
	}

	if _, ok := g.Default(); !ok {
		t.Error("missing default root")
	}
	if _, n, ok := g.Escalation(); !ok || n != 2 {
		t.Errorf("escalation n = %d, ok = %v; want 2, true", n, ok)
	}
}

func TestLoadKeywordDefaultsToNodeRef(t *testing.T) {
	g, _, err := Load([]byte(`{"bot":"b","roots":["hello"],"nodes":{"hello":{"responses":["hi"]}}}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := g.Root("hello"); !ok {
		t.Error("node without explicit keyword should root under its ref")
	}
}

func TestLoadRejectsDanglingReferences(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"dangling followup", `{"bot":"b","roots":["a"],"nodes":{"a":{"followups":{"x":"ghost"}}}}`},
		{"dangling root", `{"bot":"b","roots":["ghost"],"nodes":{"a":{}}}`},
		{"no nodes", `{"bot":"b","roots":[],"nodes":{}}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Load([]byte(tc.data)); err == nil {
				t.Error("expected load error")
			}
		})
	}
}

func TestLoadDeterministicIDs(t *testing.T) {
	// Arena ids come from the sorted node refs, not map iteration order.
	first, _, err := Load([]byte(sampleModel))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _, err := Load([]byte(sampleModel))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		for id := 0; id < first.Len(); id++ {
			if first.Get(NodeID(id)).Keyword != again.Get(NodeID(id)).Keyword {
				t.Fatalf("node %d keyword differs between loads", id)
			}
		}
	}
}
