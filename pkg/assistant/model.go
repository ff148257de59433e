package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Ramsey-B/marigold/pkg/httpclient"
)

// Completion is one rendered request for structured output.
type Completion struct {
	Name   string
	System string
	User   string
	Schema map[string]any
}

// Model answers a completion with JSON matching its schema.
type Model interface {
	Complete(ctx context.Context, completion Completion) ([]byte, error)
}

// ChatModel calls an OpenAI-compatible chat completions endpoint.
type ChatModel struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
	model   string
}

func NewChatModel(client *httpclient.Client, baseURL, apiKey, model string) *ChatModel {
	return &ChatModel{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (m *ChatModel) Complete(ctx context.Context, completion Completion) ([]byte, error) {
	request := chatRequest{
		Model: m.model,
		Messages: []chatMessage{
			{Role: "system", Content: completion.System},
			{Role: "user", Content: completion.User},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   completion.Name,
				"strict": true,
				"schema": completion.Schema,
			},
		},
	}

	resp, err := m.client.PostJSON(ctx, m.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + m.apiKey,
	}, request)
	if err != nil {
		return nil, err
	}

	var body chatResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil && resp.OK() {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}
	if !resp.OK() {
		if body.Error != nil && body.Error.Message != "" {
			return nil, fmt.Errorf("model returned status %d: %s", resp.StatusCode, body.Error.Message)
		}
		return nil, fmt.Errorf("model returned status %d", resp.StatusCode)
	}
	if len(body.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}

	message := body.Choices[0].Message
	if message.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", message.Refusal)
	}
	return []byte(message.Content), nil
}
