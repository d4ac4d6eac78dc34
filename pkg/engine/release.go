package engine

import (
	"context"

	"github.com/openbotkit/botflow/pkg/graph"
	"github.com/openbotkit/botflow/pkg/logger"
	"github.com/openbotkit/botflow/pkg/session"
)

// ReleaseFunction hands the channel back from an external function to the
// dialogue flow. The suspended conversation is resumed and announced when one
// exists; a pending auto-advance edge fires; otherwise the current node's
// response is repeated so the user knows where the conversation stands.
// Callers must serialize with the channel's other turns (see Loop).
func (e *Engine) ReleaseFunction(ctx context.Context, sessionKey string) error {
	sess, ok := e.sessions.Peek(sessionKey)
	if !ok {
		return nil
	}
	sess.ActiveFunction = ""

	node := e.graph.Get(sess.CurrentNode)
	if node == nil {
		return nil
	}

	switch {
	case node.Terminal():
		if !sess.PopContext() {
			logger.InfoCF("engine", "Conversation flow ended", map[string]interface{}{
				"channel": sessionKey,
			})
			sess.ResetConversation()
			e.sessions.Remove(sessionKey)
			return nil
		}
		restored := e.graph.Get(sess.CurrentNode)
		if restored != nil {
			e.send(ctx, sess, restored)
		}

	case hasEdge(node, graph.EdgeAuto):
		id, _ := node.Followup(graph.EdgeAuto)
		sess.MoveTo(id)
		e.send(ctx, sess, e.graph.Get(id))

	default:
		e.send(ctx, sess, node)
	}
	return nil
}

func (e *Engine) send(ctx context.Context, sess *session.Session, node *graph.Node) {
	for _, out := range e.renderer.Render(ctx, sess, node, "") {
		e.broker.PublishOutbound(out)
	}
}

func hasEdge(n *graph.Node, key string) bool {
	_, ok := n.Followup(key)
	return ok
}
