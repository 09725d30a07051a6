package api

import (
	"encoding/json"

	"github.com/google/uuid"
)

type StartSessionRequest struct {
	Title string `json:"title"`
	// SessionId optionally focuses the conversation on one class session.
	SessionId string `json:"session_id"`
}

type ChatSessionMetadata struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	SessionId string    `json:"session_id,omitempty"`
}

type GetSessionsResponse struct {
	Sessions []ChatSessionMetadata `json:"sessions"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ToolCall struct {
	Name      string          `json:"name"`
	Arguments string          `json:"arguments"`
	Result    json.RawMessage `json:"result"`
}

type ChatResponse struct {
	Reply     string     `json:"reply"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

type ChatHistoryItem struct {
	MessageType string `json:"message_type"` // "human", "ai" or "tool"
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
	Metadata    any    `json:"metadata,omitempty"`
}
