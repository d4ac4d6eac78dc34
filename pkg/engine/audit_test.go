package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/nlu"
)

// collectingSink captures every recorded turn.
type collectingSink struct {
	infos []MessageInfo
}

func (s *collectingSink) Record(info MessageInfo) {
	s.infos = append(s.infos, info)
}

func TestAuditRecordsCompletedTurns(t *testing.T) {
	env := newTestEnv(t, greetingIntents)
	sink := &collectingSink{}
	env.engine.audit = sink

	env.send("hello")
	env.send("bye")

	require.Len(t, sink.infos, 2)

	first := sink.infos[0]
	assert.Equal(t, "greeting", first.Intent.Keyword)
	assert.Equal(t, "mentoring", first.BotName)
	assert.NotEmpty(t, first.ConversationID)
	assert.Equal(t, []nlu.Entity{{Name: "name", Value: "Ada"}}, first.Entities)
	assert.False(t, first.FunctionTriggered)

	second := sink.infos[1]
	assert.Equal(t, "bye", second.Intent.Keyword)
	assert.Equal(t, first.ConversationID, second.ConversationID,
		"both turns belong to the same conversation")
}

func TestAuditMarksFunctionTriggeringTurns(t *testing.T) {
	env := newTestEnv(t, map[string]nlu.Intent{
		"my homework": {Keyword: "submission", Confidence: 0.9},
	})
	sink := &collectingSink{}
	env.engine.audit = sink

	env.sendMessage(bus.InboundMessage{
		Content:  "my homework",
		FileName: "homework.pdf",
		FileBody: []byte("%PDF-"),
	})

	require.Len(t, sink.infos, 1)
	assert.True(t, sink.infos[0].FunctionTriggered)
	assert.Equal(t, "storeSubmission", sink.infos[0].TriggeredFunctionID)
}
