package anthropic

import (
	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/niblit/llm"
	"github.com/samber/lo"
)

// FromMessageParam converts an Anthropic MessageParam to an llm.Message.
// Only text blocks are carried over.
func FromMessageParam(msg anthropic.MessageParam) llm.Message {
	role := llm.RoleUser
	if string(msg.Role) == "assistant" {
		role = llm.RoleAssistant
	}

	content := make([]llm.ContentBlock, 0, len(msg.Content))
	for _, blockUnion := range msg.Content {
		if blockUnion.OfText != nil {
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeText,
				Text: blockUnion.OfText.Text,
			})
		}
	}
	return llm.Message{Role: role, Content: content}
}

// ToMessageParam converts an llm.Message to an Anthropic MessageParam.
// System messages are sent as user turns; the system prompt travels separately.
func ToMessageParam(msg llm.Message) anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
	for _, block := range msg.Content {
		if block.Type == llm.ContentBlockTypeText && block.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(block.Text))
		}
	}
	if msg.Role == llm.RoleAssistant {
		return anthropic.NewAssistantMessage(blocks...)
	}
	return anthropic.NewUserMessage(blocks...)
}

// ToMessageParams converts llm.Messages, dropping ones without text.
func ToMessageParams(msgs []llm.Message) []anthropic.MessageParam {
	nonEmpty := lo.Filter(msgs, func(m llm.Message, _ int) bool {
		return m.JoinText() != ""
	})
	return lo.Map(nonEmpty, func(m llm.Message, _ int) anthropic.MessageParam {
		return ToMessageParam(m)
	})
}
