package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/graph"
	"github.com/openbotkit/botflow/pkg/nlu"
	"github.com/openbotkit/botflow/pkg/session"
	"github.com/openbotkit/botflow/pkg/store"
)

func testSession() *session.Session {
	return &session.Session{
		Key:     "telegram:42",
		Channel: "telegram",
		ChatID:  "42",
	}
}

func TestSubstituteResolutionOrder(t *testing.T) {
	ctx := context.Background()
	entityStore := store.NewMemoryStore()
	if err := entityStore.Upsert(ctx, "bot", "telegram:42", "7", "topic", "algebra"); err != nil {
		t.Fatal(err)
	}

	r := New(entityStore, "bot")
	sess := testSession()
	sess.SetVariable("name", "Ada")
	sess.RecognizedEntities = []nlu.Entity{{Name: "topic", Value: "calculus"}, {Name: "day", Value: "Monday"}}

	// Variables beat entities; entities beat the store; store fills the rest.
	got := r.Substitute(ctx, sess, "[name] wants [topic] on [day]")
	if got != "Ada wants calculus on Monday" {
		t.Errorf("got %q", got)
	}

	sess.RecognizedEntities = nil
	got = r.Substitute(ctx, sess, "Last topic was [topic]")
	if got != "Last topic was algebra" {
		t.Errorf("store fallback: got %q", got)
	}
}

func TestSubstituteUnresolvedStaysVerbatim(t *testing.T) {
	r := New(store.NewMemoryStore(), "bot")
	got := r.Substitute(context.Background(), testSession(), "Hello [stranger]!")
	if got != "Hello [stranger]!" {
		t.Errorf("got %q", got)
	}
}

func TestSubstituteSkipsEmptyEntityValues(t *testing.T) {
	r := New(store.NewMemoryStore(), "bot")
	sess := testSession()
	sess.RecognizedEntities = []nlu.Entity{{Name: "name", Value: ""}, {Name: "name", Value: "Grace"}}

	if got := r.Substitute(context.Background(), sess, "Hi [name]"); got != "Hi Grace" {
		t.Errorf("got %q", got)
	}
}

func TestRenderNormalizesLineBreaks(t *testing.T) {
	r := New(store.NewMemoryStore(), "bot")
	r.SetSeed(1)

	node := &graph.Node{Responses: []string{`line one\nline two`}}
	out := r.Render(context.Background(), testSession(), node, "")
	if len(out) != 1 {
		t.Fatalf("messages = %d, want 1", len(out))
	}
	if out[0].Content != "line one\nline two" {
		t.Errorf("got %q", out[0].Content)
	}
	if out[0].Kind != bus.OutboundText {
		t.Errorf("kind = %q, want text", out[0].Kind)
	}
}

func TestRenderEmptyResponsesProducesNothing(t *testing.T) {
	r := New(store.NewMemoryStore(), "bot")
	out := r.Render(context.Background(), testSession(), &graph.Node{}, "")
	if len(out) != 0 {
		t.Errorf("messages = %d, want 0", len(out))
	}
}

func TestRenderInteractiveCarriesButtonOptions(t *testing.T) {
	r := New(store.NewMemoryStore(), "bot")
	node := &graph.Node{
		Kind:      graph.KindInteractive,
		Responses: []string{"Pick one"},
		Followups: map[string]graph.NodeID{
			"yes":             1,
			"no":              2,
			graph.EdgeAuto:    3,
			graph.EdgeAny:     4,
			graph.EdgeSkip:    5,
			graph.EdgeAnyFile: 6,
		},
	}

	out := r.Render(context.Background(), testSession(), node, "")
	if len(out) != 1 {
		t.Fatalf("messages = %d, want 1", len(out))
	}
	if out[0].Kind != bus.OutboundInteractive {
		t.Errorf("kind = %q, want interactive", out[0].Kind)
	}
	if opts := out[0].Metadata["options"]; opts != "no,yes" {
		t.Errorf("options = %q, want %q", opts, "no,yes")
	}
}

func TestRenderFetchesFile(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		w.Header().Set("Content-Disposition", `attachment; filename="plan.pdf"`)
		w.Write([]byte("%PDF-plan"))
	}))
	defer srv.Close()

	r := New(store.NewMemoryStore(), "mentoring")
	r.SetSeed(1)
	node := &graph.Node{Responses: []string{"Here you go"}, FileURL: srv.URL + "/files/plan"}

	out := r.Render(context.Background(), testSession(), node, "")
	if len(out) != 2 {
		t.Fatalf("messages = %d, want text + file", len(out))
	}

	fileMsg := out[1]
	if fileMsg.Kind != bus.OutboundFile || fileMsg.FileName != "plan.pdf" {
		t.Errorf("file message = %+v", fileMsg)
	}
	body, err := os.ReadFile(fileMsg.FilePath)
	if err != nil {
		t.Fatalf("read fetched file: %v", err)
	}
	defer os.Remove(fileMsg.FilePath)
	if string(body) != "%PDF-plan" {
		t.Errorf("body = %q", body)
	}

	if gotUser != "mentoring" || gotPass != "actingAgent" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
}

func TestRenderFileURLEmailRewrite(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	r := New(store.NewMemoryStore(), "bot")
	node := &graph.Node{FileURL: srv.URL + "/plans/menteeEmail"}

	out := r.Render(context.Background(), testSession(), node, "ada@example.org")
	if len(out) != 1 {
		t.Fatalf("messages = %d, want 1", len(out))
	}
	defer os.Remove(out[0].FilePath)

	if !strings.HasSuffix(gotPath, "/plans/ada@example.org") {
		t.Errorf("requested path = %q", gotPath)
	}
}

func TestRenderFileFailureFallsBackToErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(store.NewMemoryStore(), "bot")
	node := &graph.Node{
		FileURL:      srv.URL + "/broken",
		ErrorMessage: "The file service is unavailable.",
	}

	out := r.Render(context.Background(), testSession(), node, "")
	if len(out) != 1 {
		t.Fatalf("messages = %d, want 1", len(out))
	}
	if out[0].Kind != bus.OutboundText || out[0].Content != "The file service is unavailable." {
		t.Errorf("got %+v", out[0])
	}

	// Without a modeled error message the failure is silent.
	out = r.Render(context.Background(), testSession(), &graph.Node{FileURL: srv.URL + "/broken"}, "")
	if len(out) != 0 {
		t.Errorf("messages = %d, want 0", len(out))
	}
}

func TestFileNameHeuristics(t *testing.T) {
	cases := []struct {
		disposition, url, want string
	}{
		{`attachment; filename="report.pdf"`, "http://x/y", "report.pdf"},
		{"", "http://x/files/diagram.svg", "diagram.svg"},
		{"", "http://x/files/archive.zip", "pdf.pdf"},
		{"", "http://x/files/noext", "pdf.pdf"},
	}
	for _, tc := range cases {
		if got := fileName(tc.disposition, tc.url); got != tc.want {
			t.Errorf("fileName(%q, %q) = %q, want %q", tc.disposition, tc.url, got, tc.want)
		}
	}
}
