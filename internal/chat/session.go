package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"attendance-backend/internal/database"
	"attendance-backend/internal/query"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MessageHuman = "human"
	MessageAI    = "ai"
	MessageTool  = "tool"

	DefaultMaxIterations = 5

	maxIterationsReply = "Maximum iterations reached."
)

var ErrEmptyMessage = errors.New("message is empty")

const systemPrompt = `You are an assistant for a classroom attendance and engagement tracking system.

When presenting attendance results:
- Always report both present and absent counts, and mention unknown statuses if there are any.
- Never assume all students were present unless the absent count is exactly zero.
- Use the exact numbers returned by the tools.
- If the attendance rate is below 100%, clearly state that not all students attended.
- Prefer phrasing such as "Out of 6 students, 5 were present and 1 was absent (83.3% attendance)."

When presenting engagement or attendance summaries, reference the session id and
include averages and attendance rate values. Trust the tools' numeric output.`

func NewOpenAIModel(apiKey, model string) (llms.Model, error) {
	client, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("could not create OpenAI client: %w", err)
	}
	return client, nil
}

// ToolInvocation is stored as the metadata of a tool message.
type ToolInvocation struct {
	CallId    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments string          `json:"arguments"`
	Result    json.RawMessage `json:"result"`
}

type Reply struct {
	Content   string           `json:"content"`
	ToolCalls []ToolInvocation `json:"tool_calls"`
}

// ChatSession answers questions in one assistant conversation by letting the
// model call query operations. Calls on the same session are serialized.
type ChatSession struct {
	mu            sync.Mutex
	db            *gorm.DB
	sessionID     uuid.UUID
	focus         string
	model         llms.Model
	queries       *query.Service
	maxIterations int
}

func NewChatSession(db *gorm.DB, session database.ChatSession, model llms.Model, queries *query.Service) *ChatSession {
	return &ChatSession{
		db:            db,
		sessionID:     session.ID,
		focus:         session.SessionId.String,
		model:         model,
		queries:       queries,
		maxIterations: DefaultMaxIterations,
	}
}

func tools() []llms.Tool {
	specs := query.Tools()
	out := make([]llms.Tool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return out
}

func (session *ChatSession) prompt() string {
	if session.focus == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\nUnless the user names another session, questions are about session " + session.focus + "."
}

func (session *ChatSession) Chat(ctx context.Context, userInput string) (Reply, error) {
	if userInput == "" {
		return Reply{}, ErrEmptyMessage
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	history, err := GetChatHistory(ctx, session.db, session.sessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("error loading chat history: %w", err)
	}

	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, session.prompt())}
	for _, msg := range history {
		switch msg.MessageType {
		case MessageHuman:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case MessageAI:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		}
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, userInput))

	if err := session.saveMessage(ctx, MessageHuman, userInput, nil); err != nil {
		return Reply{}, err
	}

	reply := Reply{Content: maxIterationsReply, ToolCalls: []ToolInvocation{}}
	for i := 0; i < session.maxIterations; i++ {
		resp, err := session.model.GenerateContent(ctx, messages,
			llms.WithTools(tools()),
			llms.WithTemperature(0.5),
			llms.WithMaxTokens(2000),
		)
		if err != nil {
			slog.Error("error calling language model", "session_id", session.sessionID, "error", err)
			return Reply{}, fmt.Errorf("error calling language model: %w", err)
		}
		if len(resp.Choices) == 0 {
			return Reply{}, fmt.Errorf("language model returned no choices")
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			reply.Content = choice.Content
			break
		}

		call := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			call.Parts = append(call.Parts, tc)
		}
		messages = append(messages, call)

		for _, tc := range choice.ToolCalls {
			invocation := session.runTool(ctx, tc)
			reply.ToolCalls = append(reply.ToolCalls, invocation)

			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       invocation.Name,
					Content:    string(invocation.Result),
				}},
			})

			if err := session.saveMessage(ctx, MessageTool, invocation.Name, invocation); err != nil {
				return Reply{}, err
			}
		}
	}

	if err := session.saveMessage(ctx, MessageAI, reply.Content, nil); err != nil {
		return Reply{}, err
	}

	return reply, nil
}

// runTool executes one model tool call. Failures are reported back to the
// model as an error object rather than aborting the conversation.
func (session *ChatSession) runTool(ctx context.Context, tc llms.ToolCall) ToolInvocation {
	invocation := ToolInvocation{CallId: tc.ID}
	if tc.FunctionCall == nil {
		invocation.Result = errorResult(fmt.Errorf("%w: missing function call", query.ErrUnknownOperation))
		return invocation
	}
	invocation.Name = tc.FunctionCall.Name
	invocation.Arguments = tc.FunctionCall.Arguments

	slog.Info("running assistant tool", "session_id", session.sessionID, "tool", invocation.Name, "arguments", invocation.Arguments)

	op, err := query.Decode(invocation.Name, []byte(invocation.Arguments))
	if err != nil {
		invocation.Result = errorResult(err)
		return invocation
	}

	out, err := session.queries.Execute(ctx, op)
	if err != nil {
		invocation.Result = errorResult(err)
		return invocation
	}

	data, err := json.Marshal(out)
	if err != nil {
		invocation.Result = errorResult(err)
		return invocation
	}
	invocation.Result = data
	return invocation
}

func errorResult(err error) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return data
}

func (session *ChatSession) saveMessage(ctx context.Context, messageType, content string, metadata any) error {
	var metadataJSON datatypes.JSON
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("could not marshal metadata: %w", err)
		}
		metadataJSON = datatypes.JSON(b)
	}

	err := SaveChatMessage(ctx, session.db, &database.ChatHistory{
		SessionID:   session.sessionID,
		MessageType: messageType,
		Content:     content,
		Metadata:    metadataJSON,
	})
	if err != nil {
		return fmt.Errorf("error saving %s message: %w", messageType, err)
	}
	return nil
}
