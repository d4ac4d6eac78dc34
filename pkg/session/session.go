package session

import (
	"time"

	"github.com/openbotkit/botflow/pkg/graph"
	"github.com/openbotkit/botflow/pkg/nlu"
)

// StoredContext is the (depth-one) context stack entry: the conversation
// suspended when a command interrupted it. Pop must restore node and
// conversation id exactly as they were.
type StoredContext struct {
	Node           graph.NodeID
	ConversationID string
}

// Session is the mutable per-channel conversation state. All fields are owned
// by the single engine worker serving this session's key; nothing here is
// safe for concurrent mutation.
type Session struct {
	Key      string `json:"key"`
	Channel  string `json:"channel"`
	ChatID   string `json:"chat_id"`
	BotName  string `json:"bot_name"`
	LastUser string `json:"last_user"`

	// CurrentNode is graph.None while the channel sits at the root.
	CurrentNode    graph.NodeID `json:"current_node"`
	ConversationID string       `json:"conversation_id"`

	Stored *StoredContext `json:"stored,omitempty"`

	RecognizedEntities []nlu.Entity      `json:"recognized_entities,omitempty"`
	UserVariables      map[string]string `json:"user_variables,omitempty"`
	DefaultAnswerCount int               `json:"default_answer_count"`
	ActiveFunction     string            `json:"active_function,omitempty"`
	ActiveNLUModel     string            `json:"active_nlu_model"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// InFunctionContext reports whether an external function currently owns the
// channel.
func (s *Session) InFunctionContext() bool {
	return s.ActiveFunction != ""
}

// AtRoot reports whether the session has no active conversation node.
func (s *Session) AtRoot() bool {
	return s.CurrentNode == graph.None
}

// PushContext suspends the running conversation for a command, replacing any
// previous stack entry.
func (s *Session) PushContext() {
	if s.CurrentNode == graph.None {
		return
	}
	s.Stored = &StoredContext{
		Node:           s.CurrentNode,
		ConversationID: s.ConversationID,
	}
	s.CurrentNode = graph.None
	s.ConversationID = ""
}

// PopContext restores the suspended conversation. Strict inverse of
// PushContext. Returns false when nothing was stored.
func (s *Session) PopContext() bool {
	if s.Stored == nil {
		return false
	}
	s.CurrentNode = s.Stored.Node
	s.ConversationID = s.Stored.ConversationID
	s.Stored = nil
	return true
}

// MoveTo parks the session on a node.
func (s *Session) MoveTo(id graph.NodeID) {
	s.CurrentNode = id
	s.Updated = time.Now()
}

// RememberEntities appends the intent's entities to the per-conversation
// memory used by the renderer.
func (s *Session) RememberEntities(entities []nlu.Entity) {
	s.RecognizedEntities = append(s.RecognizedEntities, entities...)
}

// SetVariable records a per-channel template variable.
func (s *Session) SetVariable(name, value string) {
	if s.UserVariables == nil {
		s.UserVariables = make(map[string]string)
	}
	s.UserVariables[name] = value
}

// ResetConversation returns the session to the root state, dropping
// conversation-scoped memory but keeping channel-scoped state (variables,
// NLU model, stored context).
func (s *Session) ResetConversation() {
	s.CurrentNode = graph.None
	s.ConversationID = ""
	s.RecognizedEntities = nil
	s.Updated = time.Now()
}
