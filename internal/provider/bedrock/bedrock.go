package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/felipepmaragno/agentrouter/internal/provider"
)

const (
	ProviderID     = "bedrock"
	bedrockVersion = "bedrock-2023-05-31"
)

var Specs = []provider.ModelSpec{
	{
		ID: "anthropic.claude-3-5-sonnet-20241022-v2:0", Name: "Claude 3.5 Sonnet (Bedrock)", CostPer1K: 0.003, MaxTokens: 200000, Speed: 7, Quality: 9,
		Tasks: []domain.TaskType{domain.TaskSummary, domain.TaskTranslation, domain.TaskAnalysis, domain.TaskGeneral, domain.TaskCoding},
	},
	{
		ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", CostPer1K: 0.00025, MaxTokens: 200000, Speed: 9, Quality: 7,
		Tasks: []domain.TaskType{domain.TaskSummary, domain.TaskTranslation, domain.TaskGeneral},
	},
}

// Invoker is the subset of the bedrockruntime client used here.
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Provider struct {
	client Invoker
	region string
	now    func() time.Time
}

func New(ctx context.Context, region string) (*Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithConfig(cfg), nil
}

func NewWithConfig(cfg aws.Config) *Provider {
	return NewWithClient(bedrockruntime.NewFromConfig(cfg), cfg.Region)
}

func NewWithClient(client Invoker, region string) *Provider {
	return &Provider{
		client: client,
		region: region,
		now:    time.Now,
	}
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) Models() []domain.Model {
	return provider.Models(ProviderID, Specs)
}

type invokeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []message `json:"messages"`
	System           string    `json:"system,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) Complete(ctx context.Context, modelID, prompt string, opts provider.CompletionOptions) (*domain.Completion, error) {
	opts = opts.WithDefaults()

	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: bedrockVersion,
		MaxTokens:        opts.MaxTokens,
		Messages:         []message{{Role: "user", Content: prompt}},
		System:           opts.System,
		Temperature:      opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := p.now()
	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke model: %w", err)
	}

	var resp invokeResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	var cost float64
	if spec, ok := provider.FindSpec(Specs, modelID); ok {
		cost = spec.Cost(tokens)
	}

	return &domain.Completion{
		Content:    content.String(),
		TokensUsed: tokens,
		Cost:       cost,
		LatencyMs:  p.now().Sub(start).Milliseconds(),
		ModelUsed:  modelID,
	}, nil
}

// HealthCheck only verifies that a region is configured; Bedrock has no cheap ping.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.region == "" {
		return fmt.Errorf("bedrock: no region configured")
	}
	return nil
}
