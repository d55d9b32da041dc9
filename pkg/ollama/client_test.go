package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/menta2k/pool-coach/pkg/analysis"
	"github.com/menta2k/pool-coach/pkg/client"
	"github.com/menta2k/pool-coach/pkg/types"
)

func testRequest() client.Request {
	return analysis.BuildRequest(
		types.EncodedImage{Data: []byte{0xFF, 0xD8, 0xFF}, MIMEType: "image/jpeg"},
		types.AnalysisParameters{Suit: types.SuitOpen, Mode: types.ModeCasual},
	)
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient("not a url", ""); err == nil {
		t.Error("Expected error for invalid URL")
	}
	c, err := NewClient("http://localhost:11434/api/chat", "")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.model != DefaultModel {
		t.Errorf("Expected default model, got %s", c.model)
	}
}

func TestBuildChatRequest(t *testing.T) {
	req, err := buildChatRequest("llava", testRequest())
	if err != nil {
		t.Fatalf("buildChatRequest failed: %v", err)
	}
	if req.Stream == nil || *req.Stream {
		t.Error("request must not stream")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
	if len(req.Messages[1].Images) != 1 {
		t.Error("image not attached to user message")
	}

	var schema types.Schema
	if err := json.Unmarshal(req.Format, &schema); err != nil {
		t.Fatalf("format is not a JSON schema: %v", err)
	}
	if schema.Type != types.TypeObject || len(schema.Required) != 2 {
		t.Errorf("unexpected schema: %+v", schema)
	}
}

func TestSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llava","message":{"role":"assistant","content":"{\"recommendations\":[],\"generalAdvice\":\"ok\"}"},"done":true}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "llava")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	text, err := c.Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := analysis.ParseResult(text); err != nil {
		t.Errorf("reply did not parse: %v (%q)", err, text)
	}
}

func TestSubmitStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "llava")
	_, err := c.Submit(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected error")
	}
	var se client.StatusError
	if !errors.As(err, &se) || se.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %v", err)
	}
}
