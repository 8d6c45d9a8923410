package ai

import (
	"strings"

	"rag-chatbot-backend/models"
)

// Message is one chat message on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type PromptKind int

const (
	PromptText PromptKind = iota
	PromptMessages
	PromptDocuments
)

func (k PromptKind) String() string {
	switch k {
	case PromptText:
		return "text"
	case PromptMessages:
		return "messages"
	case PromptDocuments:
		return "documents"
	default:
		return "unknown"
	}
}

// Prompt is the input of a Completer. Build it with TextPrompt,
// MessagesPrompt or DocumentsPrompt.
type Prompt struct {
	kind      PromptKind
	text      string
	messages  []Message
	documents []models.Document
}

// TextPrompt sends text as a single user message.
func TextPrompt(text string) Prompt {
	return Prompt{kind: PromptText, text: text}
}

// MessagesPrompt sends msgs as they are.
func MessagesPrompt(msgs ...Message) Prompt {
	return Prompt{kind: PromptMessages, messages: append([]Message(nil), msgs...)}
}

// DocumentsPrompt sends the documents' contents, separated by blank lines, as
// a single user message.
func DocumentsPrompt(docs ...models.Document) Prompt {
	return Prompt{kind: PromptDocuments, documents: append([]models.Document(nil), docs...)}
}

func (p Prompt) Kind() PromptKind { return p.kind }

// Messages renders the prompt as the chat message list sent on the wire.
func (p Prompt) Messages() []Message {
	switch p.kind {
	case PromptMessages:
		return append([]Message(nil), p.messages...)
	case PromptDocuments:
		parts := make([]string, 0, len(p.documents))
		for _, d := range p.documents {
			parts = append(parts, d.Content)
		}
		return []Message{{Role: models.RoleUser, Content: strings.Join(parts, "\n\n")}}
	default:
		return []Message{{Role: models.RoleUser, Content: p.text}}
	}
}
