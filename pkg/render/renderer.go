package render

import (
	"context"
	"math/rand"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/graph"
	"github.com/openbotkit/botflow/pkg/logger"
	"github.com/openbotkit/botflow/pkg/session"
	"github.com/openbotkit/botflow/pkg/store"
)

var placeholderRe = regexp.MustCompile(`\[([^\[\]]+)\]`)

// Renderer turns a resolved conversation node into outbound messages:
// template choice, line-break normalization, variable substitution, and the
// optional file attachment.
type Renderer struct {
	store   store.EntityStore
	client  *http.Client
	botName string

	mu  sync.Mutex
	rng *rand.Rand
}

func New(entityStore store.EntityStore, botName string) *Renderer {
	return &Renderer{
		store:   entityStore,
		botName: botName,
		client:  &http.Client{Timeout: 30 * time.Second},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetSeed pins the template choice for tests.
func (r *Renderer) SetSeed(seed int64) {
	r.mu.Lock()
	r.rng = rand.New(rand.NewSource(seed))
	r.mu.Unlock()
}

// pickResponse chooses one candidate reply uniformly at random. An empty
// candidate list (or a chosen empty template) means no outgoing text.
func (r *Renderer) pickResponse(node *graph.Node) string {
	if len(node.Responses) == 0 {
		return ""
	}
	r.mu.Lock()
	i := r.rng.Intn(len(node.Responses))
	r.mu.Unlock()
	return node.Responses[i]
}

// normalizeLineBreaks turns the literal \n markers bot modelers write into
// real line breaks.
func normalizeLineBreaks(text string) string {
	return strings.ReplaceAll(text, `\n`, "\n")
}

// Substitute resolves [name] placeholders: channel variables first, then
// entities recognized during this conversation, then the persistent entity
// store. An unresolved placeholder stays in the text verbatim.
func (r *Renderer) Substitute(ctx context.Context, sess *session.Session, text string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]

		if val, ok := sess.UserVariables[name]; ok {
			return val
		}
		for _, e := range sess.RecognizedEntities {
			if e.Name == name && e.Value != "" {
				return e.Value
			}
		}
		if r.store != nil {
			val, ok, err := r.store.Get(ctx, sess.Key, name)
			if err != nil {
				logger.WarnCF("render", "Entity store lookup failed", map[string]interface{}{
					"channel": sess.Key,
					"name":    name,
					"error":   err.Error(),
				})
			} else if ok && val != "" {
				return val
			}
		}
		return match
	})
}

// Render produces the outbound messages for entering node: the (optionally
// interactive) reply text and, when the node declares a file URL, the fetched
// attachment. A file fetch failure is downgraded to the node's configured
// error message and never fails the turn.
func (r *Renderer) Render(ctx context.Context, sess *session.Session, node *graph.Node, senderEmail string) []bus.OutboundMessage {
	var out []bus.OutboundMessage

	template := r.pickResponse(node)
	if template != "" {
		text := r.Substitute(ctx, sess, normalizeLineBreaks(template))
		msg := bus.OutboundMessage{
			Channel: sess.Channel,
			ChatID:  sess.ChatID,
			Kind:    bus.OutboundText,
			Content: text,
		}
		if node.Kind == graph.KindInteractive {
			msg.Kind = bus.OutboundInteractive
			if opts := buttonOptions(node); len(opts) > 0 {
				msg.Metadata = map[string]string{"options": strings.Join(opts, ",")}
			}
		}
		out = append(out, msg)
	}

	if node.FileURL != "" {
		if fileMsg, ok := r.renderFile(ctx, sess, node, senderEmail); ok {
			out = append(out, fileMsg)
		}
	}
	return out
}

// buttonOptions lists the node's user-selectable followup keywords, the
// material adapters build buttons from. Reserved edges are not buttons.
func buttonOptions(node *graph.Node) []string {
	var opts []string
	for key := range node.Followups {
		switch key {
		case graph.EdgeAuto, graph.EdgeAny, graph.EdgeAnyFile, graph.EdgeSkip:
		default:
			opts = append(opts, key)
		}
	}
	sort.Strings(opts)
	return opts
}

// renderFile fetches the node's attachment. On failure it returns the node's
// error message as a plain text outbound (or nothing when none is modeled).
func (r *Renderer) renderFile(ctx context.Context, sess *session.Session, node *graph.Node, senderEmail string) (bus.OutboundMessage, bool) {
	url := node.FileURL
	if senderEmail != "" {
		url = strings.ReplaceAll(url, "menteeEmail", senderEmail)
	}

	path, name, err := fetchFile(ctx, r.client, url, r.botName)
	if err != nil {
		logger.ErrorCF("render", "File fetch failed", map[string]interface{}{
			"channel": sess.Key,
			"url":     url,
			"error":   err.Error(),
		})
		if node.ErrorMessage == "" {
			return bus.OutboundMessage{}, false
		}
		return bus.OutboundMessage{
			Channel: sess.Channel,
			ChatID:  sess.ChatID,
			Kind:    bus.OutboundText,
			Content: node.ErrorMessage,
		}, true
	}

	return bus.OutboundMessage{
		Channel:  sess.Channel,
		ChatID:   sess.ChatID,
		Kind:     bus.OutboundFile,
		FileName: name,
		FilePath: path,
	}, true
}
