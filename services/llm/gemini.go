package llmsvc

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

type geminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*geminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini provider configured without API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating genai client")
	}
	return &geminiProvider{client: client, model: model}, nil
}

func (p *geminiProvider) Name() string { return "gemini" }

func (p *geminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	temperature := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temperature}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	content := genai.NewContentFromText(req.Prompt, genai.RoleUser)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, []*genai.Content{content}, cfg)
	if err != nil {
		return "", errors.Wrap(err, "gemini")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: no response candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

func (p *geminiProvider) Available(context.Context) bool { return p.client != nil }
