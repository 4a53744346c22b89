package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aschepis/backscratcher/niblit/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI API errors don't expose retry-after headers.
const defaultRetryAfter = 60 * time.Second

// OpenAIClient implements llm.Client and llm.Pinger for OpenAI-compatible APIs.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAIClient.
// If baseURL is empty the default OpenAI endpoint is used.
func NewOpenAIClient(apiKey, baseURL, model, organization string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *OpenAIClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	chatReq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertOpenAIError(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.NewProviderError("no choices in response", nil)
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0, 1)
	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}

	stopReason := "stop"
	if choice.FinishReason == openai.FinishReasonLength {
		stopReason = "max_tokens"
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.Usage.PromptTokens),
			OutputTokens: int64(chatResp.Usage.CompletionTokens),
		},
		StopReason: stopReason,
	}, nil
}

// Ping lists models to confirm the endpoint answers with valid credentials.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return convertOpenAIError(err)
	}
	return nil
}

func (c *OpenAIClient) buildRequest(req *llm.Request) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return openai.ChatCompletionRequest{}, fmt.Errorf("model is required")
	}

	msgs := ToOpenAIMessages(req.Messages)
	if req.System != "" {
		msgs = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}}, msgs...)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	return chatReq, nil
}

// convertOpenAIError converts OpenAI API errors to llm.Error types.
func convertOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return llm.Classify(err)
	}

	switch apiErr.HTTPStatusCode {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		return llm.NewRateLimitError(
			fmt.Sprintf("OpenAI rate limit: %s", apiErr.Message),
			&retryAfter,
			err,
		)
	case http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError(
			fmt.Sprintf("OpenAI request too large: %s", apiErr.Message),
			err,
		)
	case http.StatusBadRequest:
		return &llm.Error{
			Type:        llm.ErrorTypeInvalidRequest,
			Message:     fmt.Sprintf("OpenAI invalid request: %s", apiErr.Message),
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &llm.Error{
			Type:        llm.ErrorTypeUnavailable,
			Message:     fmt.Sprintf("OpenAI unavailable: %s", apiErr.Message),
			Retryable:   true,
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	case http.StatusInternalServerError:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("OpenAI server error: %s", apiErr.Message),
			Retryable:   true,
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	default:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("OpenAI API error: %s", apiErr.Message),
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	}
}

var (
	_ llm.Client = (*OpenAIClient)(nil)
	_ llm.Pinger = (*OpenAIClient)(nil)
)
