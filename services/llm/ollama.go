package llmsvc

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type ollamaProvider struct {
	client  *http.Client
	baseURL string
	model   string
}

func NewOllamaProvider(client *http.Client, baseURL, model string) *ollamaProvider {
	return &ollamaProvider{client: client, baseURL: strings.TrimRight(baseURL, "/"), model: model}
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Generate(ctx context.Context, req Request) (string, error) {
	payload := map[string]interface{}{
		"model":    p.model,
		"messages": chatMessages(req),
		"stream":   false,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	var res struct {
		Message chatMessage `json:"message"`
	}
	if err := postJSON(ctx, p.client, p.baseURL+"/api/chat", nil, payload, &res); err != nil {
		return "", errors.Wrap(err, "ollama")
	}
	return res.Message.Content, nil
}

func (p *ollamaProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	res, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = res.Body.Close()
	return res.StatusCode == http.StatusOK
}
