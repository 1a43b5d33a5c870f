package chat

import "time"

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Session is one conversation thread, tied one-to-one to a Telegram chat.
// Clearing history deletes its messages; the session row itself is never
// deleted in normal operation.
type Session struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    int64     `gorm:"uniqueIndex;not null" json:"chat_id"`
	Messages  []Message `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message is a single turn in a session. Date is the caller-supplied event
// time (when the Telegram message happened); retrieval orders by it, never by
// insertion order, since webhook deliveries can arrive out of order.
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID      uint64    `gorm:"not null;index:idx_chat_msg_session_date,priority:1;index:uniq_chat_msg_idempo,unique,priority:1" json:"session_id"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Date           time.Time `gorm:"not null;index:idx_chat_msg_session_date,priority:2" json:"date"`
	IdempotencyKey *string   `gorm:"type:varchar(128);index:uniq_chat_msg_idempo,unique,priority:2" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// Entry is the wire shape handed to the model client when resuming a
// conversation. Role and content round-trip verbatim from AppendMessage.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole reports whether role is one of the two roles history accepts.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleModel
}
