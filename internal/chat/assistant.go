package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"attendance-backend/internal/database"
	"attendance-backend/internal/query"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"gorm.io/gorm"
)

const DefaultSessionTitle = "New chat"

// ErrNoModel is returned by Chat when the assistant was built without a
// language model. Conversations can still be listed and managed.
var ErrNoModel = errors.New("no language model configured")

// Assistant manages assistant conversations backed by the attendance query
// service.
type Assistant struct {
	db      *gorm.DB
	model   llms.Model
	queries *query.Service
	cache   *SessionCache
}

func NewAssistant(db *gorm.DB, model llms.Model, queries *query.Service, cacheSize int) *Assistant {
	return &Assistant{
		db:      db,
		model:   model,
		queries: queries,
		cache:   NewSessionCache(cacheSize),
	}
}

// StartSession creates a conversation, optionally focused on one attendance
// session.
func (a *Assistant) StartSession(ctx context.Context, title, sessionId string) (database.ChatSession, error) {
	if title == "" {
		title = DefaultSessionTitle
	}
	session := database.ChatSession{
		ID:           uuid.New(),
		Title:        title,
		SessionId:    sql.NullString{String: sessionId, Valid: sessionId != ""},
		CreationTime: time.Now().UTC(),
	}
	if err := CreateSession(ctx, a.db, &session); err != nil {
		return database.ChatSession{}, fmt.Errorf("error creating chat session: %w", err)
	}
	return session, nil
}

func (a *Assistant) session(ctx context.Context, sessionID uuid.UUID) (*ChatSession, error) {
	return a.cache.GetSession(sessionID, func() (*ChatSession, error) {
		stored, err := GetSession(ctx, a.db, sessionID)
		if err != nil {
			return nil, err
		}
		return NewChatSession(a.db, stored, a.model, a.queries), nil
	})
}

// Chat sends one user message. It returns gorm.ErrRecordNotFound if the
// conversation does not exist.
func (a *Assistant) Chat(ctx context.Context, sessionID uuid.UUID, message string) (Reply, error) {
	if a.model == nil {
		return Reply{}, ErrNoModel
	}
	session, err := a.session(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}
	return session.Chat(ctx, message)
}

func (a *Assistant) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	a.cache.Remove(sessionID)
	return DeleteSession(ctx, a.db, sessionID)
}
