package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"pdfrag/internal/domain"
)

const serviceName = "generator"

// ChatClient generates answers with an OpenAI-compatible chat completion API.
type ChatClient struct {
	api   *goopenai.Client
	model string
}

// Config configures the chat client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewChatClient(cfg Config) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing OpenAI API key")
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	t := cfg.Timeout
	if t == 0 {
		t = 2 * time.Minute
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: t}
	return &ChatClient{api: goopenai.NewClientWithConfig(oc), model: cfg.Model}, nil
}

// Complete sends one system and one user message and returns the trimmed
// reply. An empty choice list yields an empty answer.
func (c *ChatClient) Complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
	})
	if err != nil {
		ue := &domain.UpstreamError{Service: serviceName, Err: err}
		var apiErr *goopenai.APIError
		var reqErr *goopenai.RequestError
		switch {
		case errors.As(err, &apiErr):
			ue.Status = apiErr.HTTPStatusCode
		case errors.As(err, &reqErr):
			ue.Status = reqErr.HTTPStatusCode
		}
		return "", ue
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
