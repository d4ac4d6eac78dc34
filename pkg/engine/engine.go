package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/dispatch"
	"github.com/openbotkit/botflow/pkg/graph"
	"github.com/openbotkit/botflow/pkg/logger"
	"github.com/openbotkit/botflow/pkg/nlu"
	"github.com/openbotkit/botflow/pkg/render"
	"github.com/openbotkit/botflow/pkg/session"
	"github.com/openbotkit/botflow/pkg/store"
)

// ConfidenceThreshold is the minimum classifier confidence for an intent to
// drive a transition; below it (and without a file) the turn is handled as a
// fallback.
const ConfidenceThreshold = 0.40

// ErrConversationLost marks a session that references a conversation without
// an id. The turn fails; the session is not mutated further.
var ErrConversationLost = errors.New("session has a conversation node but no conversation id")

// Engine advances per-channel sessions along the conversation graph. The
// graph is read-only and shared; each session is only ever touched by the
// worker owning its key (see Loop).
type Engine struct {
	graph      *graph.Graph
	sessions   *session.Manager
	resolver   nlu.Resolver
	store      store.EntityStore
	renderer   *render.Renderer
	dispatcher dispatch.Dispatcher
	broker     bus.Broker
	audit      AuditSink
	botName    string
}

type Options struct {
	Graph      *graph.Graph
	Sessions   *session.Manager
	Resolver   nlu.Resolver
	Store      store.EntityStore
	Renderer   *render.Renderer
	Dispatcher dispatch.Dispatcher
	Broker     bus.Broker
	Audit      AuditSink
	BotName    string
}

func New(opts Options) *Engine {
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.Nop{}
	}
	if opts.Audit == nil {
		opts.Audit = LogSink{}
	}
	return &Engine{
		graph:      opts.Graph,
		sessions:   opts.Sessions,
		resolver:   opts.Resolver,
		store:      opts.Store,
		renderer:   opts.Renderer,
		dispatcher: opts.Dispatcher,
		broker:     opts.Broker,
		audit:      opts.Audit,
		botName:    opts.BotName,
	}
}

// Sessions exposes the session manager (channel release, inspection).
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// resolution is the node settled on for this turn plus the edge set used for
// the skip and terminal decisions. The two differ from the node's own edges
// when the escalation node renders with the interrupted node's followups.
type resolution struct {
	id        graph.NodeID
	followups map[string]graph.NodeID
}

func (e *Engine) resolve(id graph.NodeID) resolution {
	node := e.graph.Get(id)
	if node == nil {
		return resolution{id: graph.None}
	}
	return resolution{id: id, followups: node.Followups}
}

// ProcessMessage runs one full turn for one channel. Callers must serialize
// invocations per session key.
func (e *Engine) ProcessMessage(ctx context.Context, msg bus.InboundMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	isCommand := nlu.IsCommand(msg.Content)
	intent, err := e.classify(ctx, msg, isCommand)
	if err != nil {
		return fmt.Errorf("resolve intent: %w", err)
	}

	sess := e.sessions.GetOrCreate(msg.SessionKey, msg.Channel, msg.ChatID)
	sess.LastUser = msg.SenderID

	e.persistEntities(ctx, msg, intent)

	if isCommand {
		if _, known := e.graph.Root(intent.Keyword); !known && intent.Keyword != nlu.ExitKeyword {
			logger.DebugCF("engine", "Unknown command, ignoring", map[string]interface{}{
				"channel": sess.Key,
				"command": intent.Keyword,
			})
			return nil
		}
		if intent.Keyword != nlu.ExitKeyword {
			// Suspend the running conversation and start over from root.
			sess.PushContext()
		}
	}

	// Commands take precedence over function context; everything else is
	// forwarded to the owning function without walking the graph.
	if sess.InFunctionContext() && !isCommand {
		return e.forwardToFunction(ctx, sess, msg, intent)
	}

	if isCommand && intent.Keyword == nlu.ExitKeyword {
		sess.RecognizedEntities = nil
		sess.PopContext()
	}

	conversationID := sess.ConversationID
	if sess.AtRoot() {
		conversationID = uuid.NewString()
	} else if conversationID == "" {
		return fmt.Errorf("channel %s at node %d: %w", sess.Key, sess.CurrentNode, ErrConversationLost)
	}

	res, done := e.transition(sess, msg, intent, conversationID)
	if done {
		// Entity-name root jump: state moved, nothing rendered this turn.
		return nil
	}
	if res.id == graph.None {
		logger.WarnCF("engine", "Transition settled on no node", map[string]interface{}{
			"channel": sess.Key,
			"intent":  intent.Keyword,
		})
		return nil
	}

	// A settled node exposing a skip edge is silently replaced by its target
	// before rendering. When the session actually moved onto the skipped node
	// it moves along, so the next turn evaluates the target's edges.
	if skipID, ok := res.followups[graph.EdgeSkip]; ok {
		if sess.CurrentNode == res.id {
			sess.MoveTo(skipID)
		}
		res = resolution{id: skipID, followups: e.graph.Get(skipID).Followups}
	}

	return e.finishTurn(ctx, sess, msg, intent, res, conversationID)
}

// classify produces the intent: synthesized for commands, classified by the
// external resolver otherwise. The session's active NLU model is honored
// without creating a session for unseen channels.
func (e *Engine) classify(ctx context.Context, msg bus.InboundMessage, isCommand bool) (nlu.Intent, error) {
	if isCommand {
		return nlu.ParseCommand(msg.Content), nil
	}
	modelID := nlu.DefaultModelID
	if s, ok := e.sessions.Peek(msg.SessionKey); ok {
		modelID = s.ActiveNLUModel
	}
	return e.resolver.Classify(ctx, modelID, msg.Content)
}

// persistEntities upserts every extracted entity to the attribute store.
// Failures are logged and the turn continues with in-memory entities only.
func (e *Engine) persistEntities(ctx context.Context, msg bus.InboundMessage, intent nlu.Intent) {
	if e.store == nil {
		return
	}
	for _, entity := range intent.Entities {
		if entity.Value == "" {
			continue
		}
		if err := e.store.Upsert(ctx, e.botName, msg.SessionKey, msg.SenderID, entity.Name, entity.Value); err != nil {
			logger.WarnCF("engine", "Entity persistence failed", map[string]interface{}{
				"channel": msg.SessionKey,
				"entity":  entity.Name,
				"error":   err.Error(),
			})
		}
	}
}

// forwardToFunction is the function-context short-circuit: no graph walk,
// the raw intent and entities go to the function owning the channel.
func (e *Engine) forwardToFunction(ctx context.Context, sess *session.Session, msg bus.InboundMessage, intent nlu.Intent) error {
	contID, hasCont := e.graph.Continuation()
	if !msg.HasFile() && intent.Confidence < ConfidenceThreshold {
		intent = nlu.Intent{Keyword: graph.RootDefault}
	} else if !hasCont || !e.graph.Get(contID).ExpectsFile {
		intent = nlu.Intent{Keyword: graph.RootDefault}
	}

	node := e.graph.Get(sess.CurrentNode)
	if node == nil || !hasCont || !node.IsEscalation() {
		sess.DefaultAnswerCount = 0
	}

	if err := e.dispatcher.Forward(ctx, sess.ActiveFunction, msg, intent); err != nil {
		logger.ErrorCF("engine", "Function forward failed", map[string]interface{}{
			"channel":  sess.Key,
			"function": sess.ActiveFunction,
			"error":    err.Error(),
		})
	}

	e.audit.Record(MessageInfo{
		Message:             msg,
		Intent:              intent,
		TriggeredFunctionID: sess.ActiveFunction,
		BotName:             e.botName,
		Entities:            snapshotEntities(sess),
		ConversationID:      sess.ConversationID,
	})
	return nil
}

// transition implements the prioritized matching rules. It returns the
// settled resolution, or done=true for the entity-name root jump that moves
// the session and ends the turn immediately without rendering.
func (e *Engine) transition(sess *session.Session, msg bus.InboundMessage, intent nlu.Intent, conversationID string) (resolution, bool) {
	hasFile := msg.HasFile()

	if intent.Confidence < ConfidenceThreshold && !hasFile {
		return e.lowConfidence(sess, intent), false
	}

	if sess.AtRoot() {
		return e.enterFromRoot(sess, intent, hasFile, conversationID), false
	}
	return e.advanceConversation(sess, intent, hasFile, conversationID)
}

// enterFromRoot picks the conversation's first node. Entity memory restarts
// with this turn's entities.
func (e *Engine) enterFromRoot(sess *session.Session, intent nlu.Intent, hasFile bool, conversationID string) resolution {
	sess.RecognizedEntities = nil

	var target graph.NodeID = graph.None
	if hasFile {
		if id, ok := e.graph.Root(intent.Keyword); ok && e.graph.Get(id).ExpectsFile {
			target = id
		} else if id, ok := e.graph.Root(graph.RootAnyFile); ok {
			target = id
		} else if id, ok := e.graph.Default(); ok {
			target = id
		}
	} else {
		if id, ok := e.graph.Root(intent.Keyword); ok && !e.graph.Get(id).ExpectsFile {
			target = id
		} else if id, ok := e.graph.Continuation(); ok {
			target = id
		} else if val := intent.FirstEntityValue(); val != "" {
			if id, ok := e.graph.Root(val); ok {
				target = id
			}
		}
		if target == graph.None {
			if id, ok := e.graph.Default(); ok {
				target = id
			}
		}
	}
	if target == graph.None {
		return resolution{id: graph.None}
	}
	return e.advance(sess, target, intent, conversationID)
}

// advanceConversation applies the mid-conversation rules, in priority order:
// intent-keyword edge, first-entity-value edge, "any" wildcard, auto-advance
// (file-aware), entity-name root jump, default escalation.
func (e *Engine) advanceConversation(sess *session.Session, intent nlu.Intent, hasFile bool, conversationID string) (resolution, bool) {
	node := e.graph.Get(sess.CurrentNode)
	if node == nil {
		// Session points outside the graph; recover at root.
		sess.ResetConversation()
		return e.enterFromRoot(sess, intent, hasFile, conversationID), false
	}

	// A node without followups ended its conversation path last turn (it
	// survives only while a function keeps the channel parked); the new
	// intent restarts from root with the default NLU model.
	if node.Terminal() {
		sess.ActiveNLUModel = nlu.DefaultModelID
		sess.ResetConversation()
		return e.enterFromRoot(sess, intent, hasFile, conversationID), false
	}

	if id, ok := node.Followup(intent.Keyword); ok {
		return e.followIfFileMatches(sess, node, id, intent, hasFile, conversationID), false
	}

	if val := intent.FirstEntityValue(); val != "" {
		if id, ok := node.Followup(val); ok {
			return e.followIfFileMatches(sess, node, id, intent, hasFile, conversationID), false
		}
	}

	if id, ok := node.Followup(graph.EdgeAny); ok {
		return e.advance(sess, id, intent, conversationID), false
	}

	autoID, hasAuto := node.Followup(graph.EdgeAuto)
	fileID, hasAnyFile := node.Followup(graph.EdgeAnyFile)
	if hasAuto || hasAnyFile {
		if hasFile {
			if hasAnyFile {
				return e.advance(sess, fileID, intent, conversationID), false
			}
			// File with only a textual auto-advance modeled: answer with the
			// catch-all without leaving the node.
			if id, ok := e.graph.Default(); ok {
				return e.resolve(id), false
			}
			return resolution{id: graph.None}, false
		}
		if hasAuto {
			return e.advance(sess, autoID, intent, conversationID), false
		}
		return e.checkDefault(sess, node.Followups), false
	}

	if len(intent.Entities) > 0 && !sess.InFunctionContext() {
		for _, entity := range intent.Entities {
			if id, ok := e.graph.Root(entity.Name); ok {
				// First matching entity name wins; the turn ends here with
				// no response and no end-of-turn bookkeeping.
				sess.MoveTo(id)
				sess.ConversationID = conversationID
				return resolution{}, true
			}
		}
	}

	return e.checkDefault(sess, node.Followups), false
}

// followIfFileMatches takes the candidate edge only when its file
// expectation matches the message; a mismatch falls through to escalation.
func (e *Engine) followIfFileMatches(sess *session.Session, from *graph.Node, id graph.NodeID, intent nlu.Intent, hasFile bool, conversationID string) resolution {
	if e.graph.Get(id).ExpectsFile != hasFile {
		return e.checkDefault(sess, from.Followups)
	}
	return e.advance(sess, id, intent, conversationID)
}

// lowConfidence handles intents under the threshold with no file attached:
// at root the catch-all answers without starting a conversation; otherwise a
// non-file auto-advance edge is taken, else escalation.
func (e *Engine) lowConfidence(sess *session.Session, intent nlu.Intent) resolution {
	if sess.AtRoot() {
		if id, ok := e.graph.Default(); ok {
			return e.resolve(id)
		}
		return resolution{id: graph.None}
	}
	node := e.graph.Get(sess.CurrentNode)
	if node == nil {
		return resolution{id: graph.None}
	}
	if id, ok := node.Followup(graph.EdgeAuto); ok && !e.graph.Get(id).ExpectsFile {
		return e.advance(sess, id, intent, "")
	}
	return e.checkDefault(sess, node.Followups)
}

// advance commits the session to a node and remembers the intent's entities.
func (e *Engine) advance(sess *session.Session, id graph.NodeID, intent nlu.Intent, conversationID string) resolution {
	sess.MoveTo(id)
	if conversationID != "" {
		sess.ConversationID = conversationID
	}
	sess.RememberEntities(intent.Entities)
	return e.resolve(id)
}

// checkDefault is the default-escalation policy. While defaultX<N> exists and
// fewer than N consecutive fallbacks happened, it answers carrying the
// interrupted node's followups so the conversation can still resume; after
// that the root catch-all answers and the counter resets. The session itself
// never moves here.
func (e *Engine) checkDefault(sess *session.Session, interrupted map[string]graph.NodeID) resolution {
	if escID, n, ok := e.graph.Escalation(); ok && sess.DefaultAnswerCount < n {
		sess.DefaultAnswerCount++
		return resolution{id: escID, followups: interrupted}
	}
	sess.DefaultAnswerCount = 0
	defID, ok := e.graph.Default()
	if !ok {
		return resolution{id: graph.None}
	}
	return e.resolve(defID)
}

// finishTurn applies the settled node's side effects, renders, and runs the
// end-of-conversation bookkeeping.
func (e *Engine) finishTurn(ctx context.Context, sess *session.Session, msg bus.InboundMessage, intent nlu.Intent, res resolution, conversationID string) error {
	node := e.graph.Get(res.id)
	if node == nil {
		return fmt.Errorf("channel %s: resolved node %d missing: %w", sess.Key, res.id, ErrConversationLost)
	}

	functionTriggered := false
	if node.TriggeredFunctionID != "" {
		sess.ActiveFunction = node.TriggeredFunctionID
		functionTriggered = true
		if err := e.dispatcher.Trigger(ctx, node.TriggeredFunctionID, sess.Key, snapshotEntities(sess)); err != nil {
			logger.ErrorCF("engine", "Function trigger failed", map[string]interface{}{
				"channel":  sess.Key,
				"function": node.TriggeredFunctionID,
				"error":    err.Error(),
			})
		}
	}
	if node.NLUModelID != "" {
		sess.ActiveNLUModel = node.NLUModelID
	}

	for _, out := range e.renderer.Render(ctx, sess, node, msg.Email) {
		e.broker.PublishOutbound(out)
	}

	entities := snapshotEntities(sess)

	if len(res.followups) == 0 {
		e.endConversation(sess, res, conversationID)
	}

	if !node.IsEscalation() {
		sess.DefaultAnswerCount = 0
	}

	e.audit.Record(MessageInfo{
		Message:             msg,
		Intent:              intent,
		TriggeredFunctionID: sess.ActiveFunction,
		FunctionTriggered:   functionTriggered,
		BotName:             e.botName,
		Entities:            entities,
		ConversationID:      conversationID,
	})
	return nil
}

// endConversation tears the channel down after a terminal node: restore a
// suspended conversation when one exists and no function owns the channel; a
// function-triggering terminal node keeps the channel parked instead; with
// nothing pending the session is removed.
func (e *Engine) endConversation(sess *session.Session, res resolution, conversationID string) {
	sess.ResetConversation()
	switch {
	case sess.Stored != nil && !sess.InFunctionContext():
		sess.PopContext()
	case sess.Stored != nil:
		sess.MoveTo(res.id)
		sess.ConversationID = conversationID
	case sess.InFunctionContext():
		// Function keeps the channel; session survives at root.
	default:
		e.sessions.Remove(sess.Key)
	}
}

func snapshotEntities(sess *session.Session) []nlu.Entity {
	if len(sess.RecognizedEntities) == 0 {
		return nil
	}
	out := make([]nlu.Entity, len(sess.RecognizedEntities))
	copy(out, sess.RecognizedEntities)
	return out
}
