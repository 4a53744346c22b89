package openai

import (
	"github.com/aschepis/backscratcher/niblit/llm"
	openai "github.com/sashabaranov/go-openai"
	"github.com/samber/lo"
)

// ToOpenAIMessage converts an llm.Message to an OpenAI chat message.
func ToOpenAIMessage(msg llm.Message) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	switch msg.Role {
	case llm.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case llm.RoleSystem:
		role = openai.ChatMessageRoleSystem
	}
	return openai.ChatCompletionMessage{
		Role:    role,
		Content: msg.JoinText(),
	}
}

// ToOpenAIMessages converts a slice of llm.Messages, dropping empty ones.
func ToOpenAIMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	nonEmpty := lo.Filter(msgs, func(m llm.Message, _ int) bool {
		return m.JoinText() != ""
	})
	return lo.Map(nonEmpty, func(m llm.Message, _ int) openai.ChatCompletionMessage {
		return ToOpenAIMessage(m)
	})
}

// FromOpenAIMessage converts an OpenAI chat message to an llm.Message.
func FromOpenAIMessage(msg openai.ChatCompletionMessage) llm.Message {
	role := llm.RoleUser
	switch msg.Role {
	case openai.ChatMessageRoleAssistant:
		role = llm.RoleAssistant
	case openai.ChatMessageRoleSystem:
		role = llm.RoleSystem
	}
	return llm.NewTextMessage(role, msg.Content)
}
