package models

import "time"

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of a conversation history.
type Turn struct {
	Role    string    `json:"role" bson:"role"`
	Content string    `json:"content" bson:"content"`
	At      time.Time `json:"at" bson:"at"`
}

// Source points at the document an answer was drawn from.
type Source struct {
	URL   string `json:"url" bson:"url"`
	Title string `json:"title,omitempty" bson:"title,omitempty"`
}

type ChatRequest struct {
	Message   string `json:"message"`
	Model     string `json:"model" binding:"required"`
	SessionID string `json:"session_id,omitempty"`
}

type ChatResponse struct {
	Reply     string   `json:"reply"`
	Sources   []Source `json:"sources"`
	SessionID string   `json:"session_id"`
}
