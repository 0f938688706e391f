package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/felipepmaragno/agentrouter/internal/httputil"
	"github.com/felipepmaragno/agentrouter/internal/provider"
)

const (
	ProviderID     = "openai"
	DefaultBaseURL = "https://api.openai.com/v1"
)

var allTasks = []domain.TaskType{
	domain.TaskSummary, domain.TaskTranslation, domain.TaskAnalysis, domain.TaskGeneral, domain.TaskCoding,
}

var Specs = []provider.ModelSpec{
	{ID: "gpt-4o", Name: "GPT-4o", CostPer1K: 0.005, MaxTokens: 128000, Speed: 8, Quality: 10, Tasks: allTasks},
	{ID: "gpt-4o-mini", Name: "GPT-4o Mini", CostPer1K: 0.00015, MaxTokens: 128000, Speed: 9, Quality: 8, Tasks: allTasks[:4]},
	{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", CostPer1K: 0.0005, MaxTokens: 16385, Speed: 10, Quality: 7,
		Tasks: []domain.TaskType{domain.TaskSummary, domain.TaskTranslation, domain.TaskGeneral}},
}

type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func New(apiKey, baseURL string, client *http.Client) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = httputil.DefaultClient()
	}
	return &Provider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		now:     time.Now,
	}
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) Models() []domain.Model {
	return provider.Models(ProviderID, Specs)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Provider) Complete(ctx context.Context, modelID, prompt string, opts provider.CompletionOptions) (*domain.Completion, error) {
	opts = opts.WithDefaults()

	req := chatRequest{
		Model:       modelID,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if opts.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: opts.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})

	start := p.now()
	var resp chatResponse
	err := httputil.DoJSON(ctx, p.client, ProviderID, http.MethodPost, p.baseURL+"/chat/completions",
		p.headers(), req, &resp)
	if err != nil {
		return nil, err
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	var cost float64
	if spec, ok := provider.FindSpec(Specs, modelID); ok {
		cost = spec.Cost(resp.Usage.TotalTokens)
	}

	return &domain.Completion{
		Content:    content,
		TokensUsed: resp.Usage.TotalTokens,
		Cost:       cost,
		LatencyMs:  p.now().Sub(start).Milliseconds(),
		ModelUsed:  modelID,
	}, nil
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	return httputil.DoJSON(ctx, p.client, ProviderID, http.MethodGet, p.baseURL+"/models", p.headers(), nil, nil)
}

func (p *Provider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}
