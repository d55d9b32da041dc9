// Package backend builds the configured vision backend.
package backend

import (
	"fmt"
	"io"

	"github.com/menta2k/pool-coach/internal/config"
	"github.com/menta2k/pool-coach/pkg/client"
	"github.com/menta2k/pool-coach/pkg/gemini"
	"github.com/menta2k/pool-coach/pkg/llamacpp"
	"github.com/menta2k/pool-coach/pkg/ollama"
)

// Default server URLs per backend
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultLlamaCppURL = "http://localhost:8080"
)

// New creates the Submitter named by cfg.Name
func New(cfg config.BackendConfig) (client.Submitter, error) {
	switch cfg.Name {
	case config.BackendGemini, "":
		c, err := gemini.NewClient(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return c, nil
	case config.BackendOllama:
		url := cfg.URL
		if url == "" {
			url = DefaultOllamaURL
		}
		c, err := ollama.NewClient(url, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case config.BackendLlamaCpp:
		url := cfg.URL
		if url == "" {
			url = DefaultLlamaCppURL
		}
		c, err := llamacpp.NewClient(url, llamacpp.Options{
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown backend: %s (use gemini, ollama or llamacpp)", cfg.Name)
}

// Close releases backend resources for submitters that hold any
func Close(s client.Submitter) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
