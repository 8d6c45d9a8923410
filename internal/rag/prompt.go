package rag

import (
	"strings"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/models"
)

// DefaultSystemInstructions restrict the model to the retrieved context and
// the language of the question.
const DefaultSystemInstructions = `You are an AI assistant for this knowledge base. You must only use information provided in the given data to answer questions.

If you cannot find relevant information in the data, respond with a message meaning 'Sorry, I don't have enough information to answer this question.' in the same language as the user's question.

Never fabricate, speculate, or provide uncertain answers.

IMPORTANT: Always respond in exactly the same language as the question was asked. Detect the language of the question automatically and use that same language for your answer.`

const contextSeparator = "\n\n"

// Assemble builds the chat prompt: system instructions, the prior turns in
// order, then the question wrapped with its context. It has no side effects.
func Assemble(system string, chunks []models.Chunk, history []models.Turn, question string) ai.Prompt {
	msgs := make([]ai.Message, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, ai.Message{Role: models.RoleSystem, Content: system})
	}
	for _, turn := range history {
		role := models.RoleUser
		if turn.Role == models.RoleAssistant {
			role = models.RoleAssistant
		}
		msgs = append(msgs, ai.Message{Role: role, Content: turn.Content})
	}
	msgs = append(msgs, ai.Message{Role: models.RoleUser, Content: renderQuestion(chunks, question)})
	return ai.MessagesPrompt(msgs...)
}

func renderQuestion(chunks []models.Chunk, question string) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}

	var sb strings.Builder
	sb.WriteString("Use the following information to answer the question:\n\n")
	sb.WriteString("Context: ")
	sb.WriteString(strings.Join(parts, contextSeparator))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer concisely in maximum 4 sentences. Always respond in the exact same language as the question.")
	return sb.String()
}
