package engine

import (
	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/logger"
	"github.com/openbotkit/botflow/pkg/nlu"
)

// MessageInfo is the per-turn summary handed to downstream audit/analytics
// processing once the transition has settled.
type MessageInfo struct {
	Message             bus.InboundMessage `json:"message"`
	Intent              nlu.Intent         `json:"intent"`
	TriggeredFunctionID string             `json:"triggered_function_id,omitempty"`
	FunctionTriggered   bool               `json:"function_triggered"`
	BotName             string             `json:"bot_name"`
	Entities            []nlu.Entity       `json:"entities,omitempty"`
	ConversationID      string             `json:"conversation_id"`
}

// AuditSink receives one MessageInfo per completed turn.
type AuditSink interface {
	Record(MessageInfo)
}

// LogSink is the default sink: it writes the turn summary to the process log.
type LogSink struct{}

func (LogSink) Record(info MessageInfo) {
	logger.DebugCF("audit", "Turn processed", map[string]interface{}{
		"channel":         info.Message.SessionKey,
		"intent":          info.Intent.Keyword,
		"confidence":      info.Intent.Confidence,
		"function":        info.TriggeredFunctionID,
		"conversation_id": info.ConversationID,
		"entities":        len(info.Entities),
	})
}
