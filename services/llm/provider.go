// Package llmsvc rephrases nudges and assesses group health with a language model,
// falling back to template text whenever the model cannot answer.
package llmsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
)

// Request is a single chat completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider is a language model backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	// Available reports whether the backend can currently serve requests.
	Available(ctx context.Context) bool
}

// NewProvider builds the provider selected by conf.Provider.
func NewProvider(ctx context.Context, conf core.LLMConfig) (Provider, error) {
	client := &http.Client{Timeout: conf.Timeout}
	switch conf.Provider {
	case "ollama":
		return NewOllamaProvider(client, conf.OllamaBaseURL, conf.Model), nil
	case "openai":
		if conf.OpenAIAPIKey == "" {
			return nil, errors.New("openai provider configured without API key")
		}
		return NewOpenAIProvider(client, conf.OpenAIBaseURL, conf.OpenAIAPIKey, conf.Model), nil
	case "gemini":
		return NewGeminiProvider(ctx, conf.GeminiAPIKey, conf.Model)
	case "mock", "":
		return MockProvider{}, nil
	default:
		return nil, errors.Errorf("unsupported llm provider %q", conf.Provider)
	}
}

// postJSON sends `payload` and decodes the JSON response into `dest`.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending request")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("status %d: %s", res.StatusCode, bytes.TrimSpace(msg))
	}
	return errors.Wrap(json.NewDecoder(res.Body).Decode(dest), "decoding response")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatMessages(req Request) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	return append(msgs, chatMessage{Role: "user", Content: req.Prompt})
}
