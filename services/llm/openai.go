package llmsvc

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// openAIProvider talks to the OpenAI chat completions API, or any compatible server.
type openAIProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewOpenAIProvider(client *http.Client, baseURL, apiKey, model string) *openAIProvider {
	return &openAIProvider{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model}
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	payload := map[string]interface{}{
		"model":       p.model,
		"messages":    chatMessages(req),
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	}
	var res struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", headers, payload, &res); err != nil {
		return "", errors.Wrap(err, "openai")
	}
	if len(res.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return res.Choices[0].Message.Content, nil
}

func (p *openAIProvider) Available(context.Context) bool { return p.apiKey != "" }
