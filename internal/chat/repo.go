package chat

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repo is the storage access layer for sessions, messages and reply jobs.
// It holds only the pooled gorm handle; every call runs on its own scoped
// connection and each write is one transaction.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSessionByChatID(ctx context.Context, chatID int64) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) GetSessionByID(ctx context.Context, id uint64) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) SessionExists(ctx context.Context, id uint64) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// InsertMessageOrGetExisting inserts m, but if its (session, idempotency key)
// pair already exists it returns the stored row instead. The second return
// value reports whether a new row was created. Without a key this is a plain
// insert.
func (r *Repo) InsertMessageOrGetExisting(ctx context.Context, m *Message) (*Message, bool, error) {
	if m.IdempotencyKey == nil || *m.IdempotencyKey == "" {
		m.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
			return nil, false, err
		}
		return m, true, nil
	}

	err := r.db.WithContext(ctx).Create(m).Error
	if err == nil {
		return m, true, nil
	}

	existing, getErr := r.getMessageByIdempotencyKey(ctx, m.SessionID, *m.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

func (r *Repo) getMessageByIdempotencyKey(ctx context.Context, sessionID uint64, key string) (*Message, error) {
	var m Message
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND idempotency_key = ?", sessionID, key).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListRecentMessagesDesc returns the limit most recent messages for a session
// ordered by event date descending (newest first). The id tiebreak keeps the
// order deterministic for messages sharing a date.
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, sessionID uint64, limit int) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("date DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteMessages removes every message owned by the session in one statement
// and returns the driver-reported row count. Deleting from an empty session
// reports 0 and no error.
func (r *Repo) DeleteMessages(ctx context.Context, sessionID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&Message{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
