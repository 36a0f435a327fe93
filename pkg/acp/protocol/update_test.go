package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionUpdateUnmarshalMessageChunk(t *testing.T) {
	data := []byte(`{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"hello"}}`)

	var u SessionUpdate
	require.NoError(t, json.Unmarshal(data, &u))

	assert.Equal(t, UpdateAgentMessageChunk, u.Kind)
	require.NotNil(t, u.MessageChunk)
	assert.Equal(t, "hello", u.MessageChunk.Content.Text)
	assert.Nil(t, u.ToolCall)
}

func TestSessionUpdateUnmarshalThoughtChunk(t *testing.T) {
	data := []byte(`{"sessionUpdate":"agent_thought_chunk","content":{"type":"text","text":"thinking"}}`)

	var u SessionUpdate
	require.NoError(t, json.Unmarshal(data, &u))

	assert.Equal(t, UpdateAgentThoughtChunk, u.Kind)
	require.NotNil(t, u.ThoughtChunk)
	assert.Equal(t, "thinking", u.ThoughtChunk.Content.Text)
}

func TestSessionUpdateUnmarshalToolCall(t *testing.T) {
	data := []byte(`{
		"sessionUpdate": "tool_call",
		"toolCallId": "tc-1",
		"title": "Edit main.go",
		"kind": "edit",
		"status": "pending"
	}`)

	var u SessionUpdate
	require.NoError(t, json.Unmarshal(data, &u))

	require.NotNil(t, u.ToolCall)
	assert.Equal(t, "tc-1", u.ToolCall.ToolCallID)
	assert.Equal(t, "edit", u.ToolCall.Kind)
	assert.Equal(t, ToolStatusPending, u.ToolCall.Status)
}

func TestSessionUpdateUnknownKind(t *testing.T) {
	data := []byte(`{"sessionUpdate":"something_new","payload":true}`)

	var u SessionUpdate
	require.NoError(t, json.Unmarshal(data, &u))

	assert.Equal(t, "something_new", u.Kind)
	assert.Nil(t, u.MessageChunk)
	assert.Nil(t, u.ToolCall)
	assert.Nil(t, u.Plan)
}

func TestToolCallContentDiffSpellings(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "camelCase",
			data: `{"type":"diff","path":"main.go","oldText":"a","newText":"b"}`,
		},
		{
			name: "snake_case",
			data: `{"type":"diff","path":"main.go","old_text":"a","new_text":"b"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var content ToolCallContent
			require.NoError(t, json.Unmarshal([]byte(tt.data), &content))

			assert.Equal(t, "diff", content.Type)
			assert.Equal(t, "main.go", content.Path)
			assert.Equal(t, "a", content.OldText)
			assert.Equal(t, "b", content.NewText)
		})
	}
}

func TestSessionUpdateRoundTripPlan(t *testing.T) {
	original := SessionUpdate{
		Kind: UpdatePlan,
		Plan: &PlanUpdate{
			Entries: []PlanEntry{
				{Content: "read the file", Status: "completed"},
				{Content: "apply the edit", Status: "in_progress", Priority: "high"},
			},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded SessionUpdate
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, UpdatePlan, decoded.Kind)
	require.NotNil(t, decoded.Plan)
	require.Len(t, decoded.Plan.Entries, 2)
	assert.Equal(t, "apply the edit", decoded.Plan.Entries[1].Content)
}

func TestSessionNotificationUnmarshal(t *testing.T) {
	data := []byte(`{
		"sessionId": "proto-sess-1",
		"update": {
			"sessionUpdate": "tool_call_update",
			"toolCallId": "tc-2",
			"status": "completed",
			"content": [{"type":"diff","path":"x.go","old_text":"old","new_text":"new"}]
		}
	}`)

	var n SessionNotification
	require.NoError(t, json.Unmarshal(data, &n))

	assert.Equal(t, "proto-sess-1", n.SessionID)
	require.NotNil(t, n.Update.ToolCallUpdate)
	require.Len(t, n.Update.ToolCallUpdate.Content, 1)
	assert.Equal(t, "old", n.Update.ToolCallUpdate.Content[0].OldText)
	assert.Equal(t, "new", n.Update.ToolCallUpdate.Content[0].NewText)
}
