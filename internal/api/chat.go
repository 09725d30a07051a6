package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"attendance-backend/internal/chat"
	"attendance-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type ChatService struct {
	db        *gorm.DB
	assistant *chat.Assistant
}

func NewChatService(db *gorm.DB, assistant *chat.Assistant) *ChatService {
	return &ChatService{db: db, assistant: assistant}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Route("/assistant/sessions", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetSessions))
		r.Post("/", RestHandler(s.StartSession))
		r.Get("/{chat_id}", RestHandler(s.GetSession))
		r.Delete("/{chat_id}", RestHandler(s.DeleteSession))
		r.Post("/{chat_id}/rename", RestHandler(s.RenameSession))
		r.Post("/{chat_id}/messages", RestHandler(s.SendMessage))
		r.Get("/{chat_id}/history", RestHandler(s.GetHistory))
	})
}

func chatLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CodedErrorf(http.StatusNotFound, "chat session not found")
	}
	return CodedError(http.StatusInternalServerError, err)
}

func (s *ChatService) GetSessions(r *http.Request) (any, error) {
	sessions, err := chat.GetSessions(r.Context(), s.db)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	res := api.GetSessionsResponse{Sessions: make([]api.ChatSessionMetadata, 0, len(sessions))}
	for _, session := range sessions {
		res.Sessions = append(res.Sessions, convertChatSession(session))
	}
	return res, nil
}

func (s *ChatService) StartSession(r *http.Request) (any, error) {
	req, err := ParseRequest[api.StartSessionRequest](r)
	if err != nil {
		return nil, err
	}

	session, err := s.assistant.StartSession(r.Context(), req.Title, req.SessionId)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	return api.StartSessionResponse{SessionID: session.ID.String()}, nil
}

func (s *ChatService) GetSession(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}

	session, err := chat.GetSession(r.Context(), s.db, chatId)
	if err != nil {
		return nil, chatLookupError(err)
	}
	return convertChatSession(session), nil
}

func (s *ChatService) RenameSession(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.RenameSessionRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "title must not be empty")
	}

	if _, err := chat.GetSession(r.Context(), s.db, chatId); err != nil {
		return nil, chatLookupError(err)
	}
	if err := chat.UpdateSessionTitle(r.Context(), s.db, chatId, req.Title); err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return nil, nil
}

func (s *ChatService) DeleteSession(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}

	if _, err := chat.GetSession(r.Context(), s.db, chatId); err != nil {
		return nil, chatLookupError(err)
	}
	if err := s.assistant.DeleteSession(r.Context(), chatId); err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return nil, nil
}

func (s *ChatService) SendMessage(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.ChatRequest](r)
	if err != nil {
		return nil, err
	}

	reply, err := s.assistant.Chat(r.Context(), chatId, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			return nil, CodedError(http.StatusBadRequest, err)
		case errors.Is(err, chat.ErrNoModel):
			return nil, CodedErrorf(http.StatusServiceUnavailable, "assistant is not configured")
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, chatLookupError(err)
		}
		slog.Error("error running assistant", "chat_id", chatId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "assistant failed to respond")
	}

	return convertReply(reply), nil
}

func (s *ChatService) GetHistory(r *http.Request) (any, error) {
	chatId, err := URLParamUUID(r, "chat_id")
	if err != nil {
		return nil, err
	}

	if _, err := chat.GetSession(r.Context(), s.db, chatId); err != nil {
		return nil, chatLookupError(err)
	}

	history, err := chat.GetChatHistory(r.Context(), s.db, chatId)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	items := make([]api.ChatHistoryItem, 0, len(history))
	for _, msg := range history {
		item := api.ChatHistoryItem{
			MessageType: msg.MessageType,
			Content:     msg.Content,
			Timestamp:   msg.Timestamp.Format(time.RFC3339),
		}
		if len(msg.Metadata) > 0 {
			item.Metadata = msg.Metadata
		}
		items = append(items, item)
	}
	return items, nil
}

