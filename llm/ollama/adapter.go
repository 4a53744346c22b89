package ollama

import (
	"github.com/aschepis/backscratcher/niblit/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// ToOllamaMessage converts an llm.Message to an Ollama chat message.
func ToOllamaMessage(msg llm.Message) api.Message {
	role := "user"
	switch msg.Role {
	case llm.RoleAssistant:
		role = "assistant"
	case llm.RoleSystem:
		role = "system"
	}
	return api.Message{Role: role, Content: msg.JoinText()}
}

// ToOllamaMessages converts a slice of llm.Messages, dropping empty ones.
func ToOllamaMessages(msgs []llm.Message) []api.Message {
	nonEmpty := lo.Filter(msgs, func(m llm.Message, _ int) bool {
		return m.JoinText() != ""
	})
	return lo.Map(nonEmpty, func(m llm.Message, _ int) api.Message {
		return ToOllamaMessage(m)
	})
}

// FromOllamaMessage converts an Ollama chat message to an llm.Message.
func FromOllamaMessage(msg api.Message) llm.Message {
	role := llm.RoleUser
	switch msg.Role {
	case "assistant":
		role = llm.RoleAssistant
	case "system":
		role = llm.RoleSystem
	}
	return llm.NewTextMessage(role, msg.Content)
}
