package domain

import "time"

type TaskType string

const (
	TaskSummary     TaskType = "summary"
	TaskTranslation TaskType = "translation"
	TaskAnalysis    TaskType = "analysis"
	TaskGeneral     TaskType = "general"
	TaskCoding      TaskType = "coding"
)

var knownTaskTypes = map[TaskType]struct{}{
	TaskSummary:     {},
	TaskTranslation: {},
	TaskAnalysis:    {},
	TaskGeneral:     {},
	TaskCoding:      {},
}

// Valid reports whether t is one of the task tags understood by the catalog.
func (t TaskType) Valid() bool {
	_, ok := knownTaskTypes[t]
	return ok
}

// Model is a catalog entry. It is never mutated after the catalog is loaded.
type Model struct {
	ID             string     `json:"id" yaml:"id" validate:"required"`
	Name           string     `json:"name" yaml:"name" validate:"required"`
	Provider       string     `json:"provider" yaml:"provider" validate:"required"`
	CostPerToken   float64    `json:"cost_per_token" yaml:"cost_per_token"`
	MaxTokens      int        `json:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	SpeedRating    int        `json:"speed_rating" yaml:"speed_rating" validate:"min=1,max=10"`
	QualityRating  int        `json:"quality_rating" yaml:"quality_rating" validate:"min=1,max=10"`
	Availability   bool       `json:"availability" yaml:"availability"`
	SupportedTasks []TaskType `json:"supported_tasks" yaml:"supported_tasks" validate:"required,min=1"`
}

func (m Model) Supports(t TaskType) bool {
	for _, s := range m.SupportedTasks {
		if s == t {
			return true
		}
	}
	return false
}

type ModelPreferences struct {
	PreferredModels []string `json:"preferred_models,omitempty"`
	AvoidModels     []string `json:"avoid_models,omitempty"`
}

type Task struct {
	ID          string            `json:"id,omitempty"`
	Input       string            `json:"input"`
	TaskType    TaskType          `json:"task_type,omitempty"`
	Preferences *ModelPreferences `json:"model_preferences,omitempty"`
	Context     map[string]any    `json:"context,omitempty"`
	CreatedAt   time.Time         `json:"created_at,omitempty"`
}

// RouteResult is the routing decision returned to callers and stored in the cache.
type RouteResult struct {
	SelectedModel string   `json:"selected_model"`
	ModelID       string   `json:"model_id"`
	Provider      string   `json:"provider"`
	Cost          float64  `json:"cost"`
	EstimatedTime float64  `json:"estimated_time"`
	TaskType      TaskType `json:"task_type"`
	Response      string   `json:"response,omitempty"`

	// Cached is set on results served from the cache; it is never stored.
	Cached bool `json:"-"`
}

type UsageRecord struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id,omitempty"`
	TaskID        string    `json:"task_id,omitempty"`
	ModelUsed     string    `json:"model_used"`
	Provider      string    `json:"provider,omitempty"`
	Cost          float64   `json:"cost"`
	LatencyMs     int64     `json:"latency_ms"`
	TokensUsed    int       `json:"tokens_used"`
	PromptPreview string    `json:"prompt_preview"`
	Capabilities  []string  `json:"capabilities,omitempty"`
	Cached        bool      `json:"cached"`
	CreatedAt     time.Time `json:"created_at"`
}

// Completion is what a provider returns when the routed model is actually executed.
type Completion struct {
	Content    string  `json:"content"`
	TokensUsed int     `json:"tokens_used"`
	Cost       float64 `json:"cost"`
	LatencyMs  int64   `json:"latency_ms"`
	ModelUsed  string  `json:"model_used"`
}
