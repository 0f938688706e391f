package catalog

import "github.com/felipepmaragno/agentrouter/internal/domain"

var allTasks = []domain.TaskType{
	domain.TaskSummary,
	domain.TaskTranslation,
	domain.TaskAnalysis,
	domain.TaskGeneral,
	domain.TaskCoding,
}

// Default returns the built-in catalog used when no catalog file or provider is configured.
func Default() []domain.Model {
	return []domain.Model{
		{
			ID:             "gpt-4o",
			Name:           "GPT-4o",
			Provider:       "openai",
			CostPerToken:   0.005,
			MaxTokens:      128000,
			SpeedRating:    8,
			QualityRating:  10,
			Availability:   true,
			SupportedTasks: allTasks,
		},
		{
			ID:             "gpt-4o-mini",
			Name:           "GPT-4o Mini",
			Provider:       "openai",
			CostPerToken:   0.00015,
			MaxTokens:      128000,
			SpeedRating:    9,
			QualityRating:  8,
			Availability:   true,
			SupportedTasks: allTasks,
		},
		{
			ID:             "claude-3-sonnet",
			Name:           "Claude 3 Sonnet",
			Provider:       "anthropic",
			CostPerToken:   0.003,
			MaxTokens:      200000,
			SpeedRating:    7,
			QualityRating:  9,
			Availability:   true,
			SupportedTasks: allTasks,
		},
		{
			ID:             "gemini-1.5-flash",
			Name:           "Gemini 1.5 Flash",
			Provider:       "google",
			CostPerToken:   0.000001,
			MaxTokens:      1000000,
			SpeedRating:    10,
			QualityRating:  7,
			Availability:   true,
			SupportedTasks: allTasks[:4],
		},
		{
			ID:             "grok-beta",
			Name:           "Grok Beta",
			Provider:       "xai",
			CostPerToken:   0.005,
			MaxTokens:      131072,
			SpeedRating:    6,
			QualityRating:  8,
			Availability:   true,
			SupportedTasks: allTasks,
		},
	}
}
