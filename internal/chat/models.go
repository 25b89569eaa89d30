package chat

import "time"

// Chat is a conversation owned by exactly one user for its whole lifetime.
// ChatID is the caller-facing identifier; the surrogate ID never leaves the
// storage layer.
type Chat struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ChatID    string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"chat_id"`
	OwnerID   string    `gorm:"type:varchar(36);index;not null" json:"-"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

func (Chat) TableName() string { return "chats" }

// Message is one transcript entry. Retrieval order is created_at ascending
// with the autoincrement id breaking ties, so appends read back in insertion
// order.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    string    `gorm:"type:varchar(26);index;not null" json:"chat_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	FromUser  bool      `gorm:"not null" json:"from_user"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
