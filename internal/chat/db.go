package chat

import (
	"context"
	"sync"

	"attendance-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SQLite only supports one writer at a time, so we need a lock
// whenever we write to the database
var dbMutex sync.Mutex

func GetSessions(ctx context.Context, db *gorm.DB) ([]database.ChatSession, error) {
	var sessions []database.ChatSession
	err := db.WithContext(ctx).Order("creation_time DESC").Find(&sessions).Error
	return sessions, err
}

func CreateSession(ctx context.Context, db *gorm.DB, session *database.ChatSession) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.WithContext(ctx).Create(session).Error
}

func GetSession(ctx context.Context, db *gorm.DB, sessionID uuid.UUID) (database.ChatSession, error) {
	var session database.ChatSession
	err := db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	return session, err
}

func UpdateSessionTitle(ctx context.Context, db *gorm.DB, sessionID uuid.UUID, title string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.WithContext(ctx).Model(&database.ChatSession{ID: sessionID}).Update("title", title).Error
}

func DeleteSession(ctx context.Context, db *gorm.DB, sessionID uuid.UUID) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Delete(&database.ChatHistory{}, "session_id = ?", sessionID).Error; err != nil {
			return err
		}
		return txn.Delete(&database.ChatSession{}, "id = ?", sessionID).Error
	})
}

func GetChatHistory(ctx context.Context, db *gorm.DB, sessionID uuid.UUID) ([]database.ChatHistory, error) {
	var history []database.ChatHistory
	err := db.WithContext(ctx).Where("session_id = ?", sessionID).Order("timestamp ASC, id ASC").Find(&history).Error
	return history, err
}

func SaveChatMessage(ctx context.Context, db *gorm.DB, message *database.ChatHistory) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.WithContext(ctx).Create(message).Error
}
