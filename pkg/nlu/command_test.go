package nlu

import "testing"

func TestIsCommand(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"!setup", true},
		{"! leading marker with space", true},
		{"setup", false},
		{"", false},
		{"hello !there", false},
	}
	for _, tc := range cases {
		if got := IsCommand(tc.text); got != tc.want {
			t.Errorf("IsCommand(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestParseCommandKeywordOnly(t *testing.T) {
	intent := ParseCommand("!setup")

	if intent.Keyword != "setup" {
		t.Errorf("keyword = %q, want %q", intent.Keyword, "setup")
	}
	if intent.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", intent.Confidence)
	}
	if len(intent.Entities) != 1 {
		t.Fatalf("entities = %d, want 1", len(intent.Entities))
	}
	if intent.Entities[0].Name != "newEntity" || intent.Entities[0].Value != "" {
		t.Errorf("unexpected synthesized entity: %+v", intent.Entities[0])
	}
}

func TestParseCommandWithArgument(t *testing.T) {
	intent := ParseCommand("!assign mentor for math")

	if intent.Keyword != "assign" {
		t.Errorf("keyword = %q, want %q", intent.Keyword, "assign")
	}
	if len(intent.Entities) != 1 {
		t.Fatalf("entities = %d, want 1", len(intent.Entities))
	}
	e := intent.Entities[0]
	if e.Name != "assign" || e.Value != "mentor for math" {
		t.Errorf("entity = %+v, want name=assign value=%q", e, "mentor for math")
	}
}

func TestParseCommandKeepsCase(t *testing.T) {
	// Root keywords are matched verbatim, so the command keyword must not be
	// normalized.
	if got := ParseCommand("!SetUp").Keyword; got != "SetUp" {
		t.Errorf("keyword = %q, want %q", got, "SetUp")
	}
}

func TestNormalizeUmlauts(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"grüße", "gruesse"},
		{"Ärger", "Aerger"},
		{"schön, Öl, Übung", "schoen, Oel, Uebung"},
		{"plain ascii", "plain ascii"},
	}
	for _, tc := range cases {
		if got := NormalizeUmlauts(tc.in); got != tc.want {
			t.Errorf("NormalizeUmlauts(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
