package models

import "time"

// Known message roles. Role is stored as free text, these are the values
// the service itself writes or understands.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is the table-backed message row.
type Message struct {
	ID             int64
	ConversationID int64
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Conversation is the table-backed conversation row.
type Conversation struct {
	ID        int64
	Title     *string // nil when no title was given
	CreatedAt time.Time
}

// MessageRead is the API projection of a message.
type MessageRead struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationRead is the API projection used in listings, without messages.
type ConversationRead struct {
	ID        int64     `json:"id"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationDetail is a conversation together with its ordered messages.
type ConversationDetail struct {
	ID        int64         `json:"id"`
	Title     *string       `json:"title"`
	CreatedAt time.Time     `json:"created_at"`
	Messages  []MessageRead `json:"messages"`
}

// ConversationCreate is the body accepted when creating a conversation.
type ConversationCreate struct {
	Title *string `json:"title"`
}

// MessageCreate is the body accepted when posting a message.
type MessageCreate struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m Message) Read() MessageRead {
	return MessageRead{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

func (c Conversation) Read() ConversationRead {
	return ConversationRead{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt}
}

// Detail builds the detail projection. Messages are expected in history order.
func (c Conversation) Detail(messages []Message) ConversationDetail {
	reads := make([]MessageRead, 0, len(messages))
	for _, m := range messages {
		reads = append(reads, m.Read())
	}
	return ConversationDetail{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		Messages:  reads,
	}
}
