package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/menta2k/pool-coach/pkg/client"
	"github.com/menta2k/pool-coach/pkg/types"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.5-flash"

// Client submits requests to the Gemini API over one shared connection.
// Call Close when done.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini client. The API key is injected by the caller.
func NewClient(apiKey, model string, opts ...option.ClientOption) (*Client, error) {
	return NewClientWithContext(context.Background(), apiKey, model, opts...)
}

// NewClientWithContext is NewClient with a context for connection setup
func NewClientWithContext(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: API key is empty")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: cl, model: model}, nil
}

// Close releases the underlying connection
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Name() string  { return "gemini" }
func (c *Client) Model() string { return c.model }

// Submit performs one generateContent call constrained to req.Schema
func (c *Client) Submit(ctx context.Context, req client.Request) (string, error) {
	m := c.client.GenerativeModel(c.model)
	configureModel(m, req)

	resp, err := m.GenerateContent(ctx,
		genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data},
		genai.Text(req.Prompt),
	)
	if err != nil {
		return "", wrapError(err)
	}
	return firstText(resp), nil
}

func configureModel(m *genai.GenerativeModel, req client.Request) {
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   ToGenAISchema(req.Schema),
	}
	if req.SystemInstruction != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemInstruction)},
		}
	}
}

// ToGenAISchema converts a JSON schema description to the SDK's schema type
func ToGenAISchema(s *types.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        toGenAIType(s.Type),
		Description: s.Description,
		Enum:        append([]string(nil), s.Enum...),
		Items:       ToGenAISchema(s.Items),
		Required:    append([]string(nil), s.Required...),
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = ToGenAISchema(v)
		}
	}
	return out
}

func toGenAIType(t string) genai.Type {
	switch t {
	case types.TypeObject:
		return genai.TypeObject
	case types.TypeArray:
		return genai.TypeArray
	case types.TypeString:
		return genai.TypeString
	case types.TypeNumber:
		return genai.TypeNumber
	case types.TypeBoolean:
		return genai.TypeBoolean
	}
	return genai.TypeUnspecified
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

// Error carries the upstream status of a failed call
type Error struct {
	Code  codes.Code
	Cause error
}

func (e *Error) Error() string { return fmt.Sprintf("gemini: %s: %v", e.Code, e.Cause) }
func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus maps the gRPC code to its HTTP equivalent
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return 400
	case codes.Unauthenticated:
		return 401
	case codes.PermissionDenied:
		return 403
	case codes.NotFound:
		return 404
	case codes.ResourceExhausted:
		return 429
	case codes.Unavailable:
		return 503
	case codes.DeadlineExceeded:
		return 504
	}
	return 500
}

func wrapError(err error) error {
	if s, ok := status.FromError(err); ok && s.Code() != codes.OK && s.Code() != codes.Unknown {
		return &Error{Code: s.Code(), Cause: err}
	}
	return fmt.Errorf("gemini: %w", err)
}
