package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/pool-coach/pkg/client"
)

// DefaultModel is a local vision model that follows JSON schemas well
const DefaultModel = "qwen2.5vl:7b"

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}

	// Strip any path like /api/chat; the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{client: api.NewClient(baseURL, http.DefaultClient), model: model}, nil
}

func (c *Client) Name() string { return "ollama" }

// Submit sends one non-streaming chat request with the schema as the output format
func (c *Client) Submit(ctx context.Context, req client.Request) (string, error) {
	// Local models on CPU are slow
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	chatReq, err := buildChatRequest(c.model, req)
	if err != nil {
		return "", err
	}

	var responseContent strings.Builder
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		responseContent.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) {
			return "", &StatusError{Code: se.StatusCode, Cause: err}
		}
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	return responseContent.String(), nil
}

func buildChatRequest(model string, req client.Request) (*api.ChatRequest, error) {
	streamFalse := false
	chatReq := &api.ChatRequest{
		Model:  model,
		Stream: &streamFalse,
		Options: map[string]any{
			"temperature": 0.4,
			"num_ctx":     8192,
		},
	}

	if req.Schema != nil {
		format, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}
		chatReq.Format = format
	}

	if req.SystemInstruction != "" {
		chatReq.Messages = append(chatReq.Messages, api.Message{
			Role:    "system",
			Content: req.SystemInstruction,
		})
	}
	chatReq.Messages = append(chatReq.Messages, api.Message{
		Role:    "user",
		Content: req.Prompt,
		Images:  []api.ImageData{api.ImageData(req.Image.Data)},
	})
	return chatReq, nil
}

// StatusError is a non-2xx reply from the Ollama server
type StatusError struct {
	Code  int
	Cause error
}

func (e *StatusError) Error() string   { return fmt.Sprintf("ollama: status %d: %v", e.Code, e.Cause) }
func (e *StatusError) Unwrap() error   { return e.Cause }
func (e *StatusError) HTTPStatus() int { return e.Code }
