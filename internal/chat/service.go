package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const defaultMaxHistory = 20

// Service is the sole mediator between conversation state and its callers.
// It never talks to Telegram or the model client; it is a pure persistence
// boundary. All serialization of concurrent access to a session's rows is
// the storage layer's transactional responsibility.
type Service struct {
	repo       *Repo
	maxHistory int
}

// NewService builds a history service with the configured default window
// size (MAX_HISTORY_MESSAGES). Out-of-range values fall back to the default.
func NewService(repo *Repo, maxHistory int) *Service {
	if maxHistory <= 0 || maxHistory > 1000 {
		maxHistory = defaultMaxHistory
	}
	return &Service{repo: repo, maxHistory: maxHistory}
}

// MaxHistory returns the default history window size.
func (s *Service) MaxHistory() int { return s.maxHistory }

// GetOrCreateSession returns the session for a Telegram chat, creating it on
// first contact. Idempotent: repeated calls for the same chat id return the
// same session id. Two racing first-calls both succeed: the loser's insert
// hits the chat_id uniqueness constraint and is resolved by re-fetching the
// winner's row; only when that re-fetch also misses is the insert error
// propagated.
func (s *Service) GetOrCreateSession(ctx context.Context, chatID int64) (*Session, error) {
	sess, err := s.repo.GetSessionByChatID(ctx, chatID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &Session{ChatID: chatID}
	createErr := s.repo.CreateSession(ctx, created)
	if createErr == nil {
		return created, nil
	}

	// Lost the race, or the insert failed outright. Re-fetch decides which.
	sess, getErr := s.repo.GetSessionByChatID(ctx, chatID)
	if getErr == nil {
		return sess, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, createErr
	}
	return nil, getErr
}

// FindSession returns the session for a Telegram chat without creating one.
// Unknown chats report ErrSessionNotFound.
func (s *Service) FindSession(ctx context.Context, chatID int64) (*Session, error) {
	sess, err := s.repo.GetSessionByChatID(ctx, chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// History returns the default-sized window of the session's most recent
// messages, oldest first.
func (s *Service) History(ctx context.Context, sessionID uint64) ([]Entry, error) {
	return s.HistoryN(ctx, sessionID, s.maxHistory)
}

// HistoryN returns at most limit of the session's most recent messages in
// chronological order, shaped for resuming a model conversation. A session
// with fewer stored messages returns all of them; limit 0 returns an empty
// window. A negative limit fails before any storage access.
func (s *Service) HistoryN(ctx context.Context, sessionID uint64, limit int) ([]Entry, error) {
	if limit < 0 {
		return nil, ErrNegativeLimit
	}
	if limit == 0 {
		return []Entry{}, nil
	}

	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}

	// reverse to ASC (oldest -> newest)
	history := make([]Entry, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		history = append(history, Entry{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// AppendMessage persists one turn and commits before returning, so the next
// History call observes it. It performs no trimming; growth is bounded at
// read time only. The session must already exist.
func (s *Service) AppendMessage(ctx context.Context, sessionID uint64, content string, date time.Time, role string) (*Message, error) {
	m, _, err := s.AppendMessageIdempotent(ctx, sessionID, content, date, role, nil)
	return m, err
}

// AppendMessageIdempotent is AppendMessage with an optional caller-supplied
// idempotency key. A retried append carrying the same key resolves to the
// already-stored message instead of duplicating the turn. The bool reports
// whether a new row was written.
func (s *Service) AppendMessageIdempotent(ctx context.Context, sessionID uint64, content string, date time.Time, role string, key *string) (*Message, bool, error) {
	if !ValidRole(role) {
		return nil, false, ErrInvalidRole
	}

	exists, err := s.repo.SessionExists(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, ErrSessionNotFound
	}

	m := &Message{
		SessionID:      sessionID,
		Role:           role,
		Content:        content,
		Date:           date,
		IdempotencyKey: key,
	}
	return s.repo.InsertMessageOrGetExisting(ctx, m)
}

// ClearHistory deletes every message of the session in one atomic statement
// and returns how many were removed. The session itself survives; clearing
// an already-empty session returns 0.
func (s *Service) ClearHistory(ctx context.Context, sessionID uint64) (int64, error) {
	return s.repo.DeleteMessages(ctx, sessionID)
}
