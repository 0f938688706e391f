package anthropic

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
	ProviderID       = "anthropic"
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

var Specs = []provider.ModelSpec{
	{
		ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", CostPer1K: 0.003, MaxTokens: 200000, Speed: 7, Quality: 9,
		Tasks: []domain.TaskType{domain.TaskSummary, domain.TaskTranslation, domain.TaskAnalysis, domain.TaskGeneral, domain.TaskCoding},
	},
	{
		ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", CostPer1K: 0.00025, MaxTokens: 200000, Speed: 9, Quality: 7,
		Tasks: []domain.TaskType{domain.TaskSummary, domain.TaskTranslation, domain.TaskGeneral},
	},
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

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Usage   usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (p *Provider) Complete(ctx context.Context, modelID, prompt string, opts provider.CompletionOptions) (*domain.Completion, error) {
	opts = opts.WithDefaults()

	req := messagesRequest{
		Model:       modelID,
		Messages:    []message{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		System:      opts.System,
	}

	start := p.now()
	var resp messagesResponse
	err := httputil.DoJSON(ctx, p.client, ProviderID, http.MethodPost, p.baseURL+"/messages",
		p.headers(), req, &resp)
	if err != nil {
		return nil, err
	}

	tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	var cost float64
	if spec, ok := provider.FindSpec(Specs, modelID); ok {
		cost = spec.Cost(tokens)
	}

	return &domain.Completion{
		Content:    text(resp.Content),
		TokensUsed: tokens,
		Cost:       cost,
		LatencyMs:  p.now().Sub(start).Milliseconds(),
		ModelUsed:  modelID,
	}, nil
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	return httputil.DoJSON(ctx, p.client, ProviderID, http.MethodGet, p.baseURL+"/models", p.headers(), nil, nil)
}

func (p *Provider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

// text concatenates the text blocks of a messages API response.
func text(blocks []contentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
