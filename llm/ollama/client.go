package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aschepis/backscratcher/niblit/llm"
	"github.com/ollama/ollama/api"
)

// OllamaClient implements llm.Client and llm.Pinger for a local Ollama server.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a new OllamaClient.
// If host is empty, OLLAMA_HOST or http://localhost:11434 is used.
func NewOllamaClient(host, model string) (*OllamaClient, error) {
	var client *api.Client

	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, fmt.Errorf("invalid host: %w", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	return &OllamaClient{
		client: client,
		model:  model,
	}, nil
}

// parseHost parses a host string into a URL, defaulting the scheme to http.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Synchronous implements llm.Client.Synchronous.
func (c *OllamaClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	msgs := ToOllamaMessages(req.Messages)
	if req.System != "" {
		msgs = append([]api.Message{{Role: "system", Content: req.System}}, msgs...)
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   new(bool),
		Options:  make(map[string]interface{}),
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}

	var chatResp api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, convertOllamaError(err)
	}

	content := make([]llm.ContentBlock, 0, 1)
	if chatResp.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: chatResp.Message.Content,
		})
	}

	stopReason := "end_turn"
	if chatResp.Done {
		stopReason = "stop"
	}

	return &llm.Response{
		Content: content,
		Usage: &llm.Usage{
			InputTokens:  int64(chatResp.PromptEvalCount),
			OutputTokens: int64(chatResp.EvalCount),
		},
		StopReason: stopReason,
	}, nil
}

// Ping checks that the Ollama server answers its heartbeat endpoint.
func (c *OllamaClient) Ping(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return convertOllamaError(err)
	}
	return nil
}

func convertOllamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		llmErr := &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("ollama error: %s", statusErr.ErrorMessage),
			StatusCode:  statusErr.StatusCode,
			ProviderErr: err,
		}
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests:
			llmErr.Type = llm.ErrorTypeRateLimit
			llmErr.Retryable = true
		case http.StatusBadRequest, http.StatusNotFound:
			llmErr.Type = llm.ErrorTypeInvalidRequest
		case http.StatusBadGateway, http.StatusServiceUnavailable:
			llmErr.Type = llm.ErrorTypeUnavailable
			llmErr.Retryable = true
		}
		return llmErr
	}
	return llm.Classify(err)
}

var (
	_ llm.Client = (*OllamaClient)(nil)
	_ llm.Pinger = (*OllamaClient)(nil)
)
