// Package selector filters the catalog for a task and picks the best-scoring model.
package selector

import (
	"fmt"
	"slices"
	"sort"

	"github.com/felipepmaragno/agentrouter/internal/domain"
)

const (
	qualityWeight = 0.5
	speedWeight   = 0.3
	costWeight    = 0.2
)

type Candidate struct {
	Model domain.Model `json:"model"`
	Score float64      `json:"score"`
}

// Score weights quality first, speed second and cost third. Cheaper models score
// higher on the cost axis. taskType is accepted so per-task weighting can be added
// without changing callers; it does not affect the current formula.
func Score(m domain.Model, taskType domain.TaskType) float64 {
	score := float64(m.QualityRating)*qualityWeight + float64(m.SpeedRating)*speedWeight
	if m.CostPerToken > 0 {
		score += (1 / m.CostPerToken) * costWeight
	}
	return score
}

// Eligible applies the availability, task support, allow-list and deny-list filters
// in that order. The returned slice keeps catalog order.
func Eligible(models []domain.Model, task *domain.Task, taskType domain.TaskType) []domain.Model {
	out := make([]domain.Model, 0, len(models))
	for _, m := range models {
		if m.Availability && m.Supports(taskType) {
			out = append(out, m)
		}
	}

	if task == nil || task.Preferences == nil {
		return out
	}

	if prefs := task.Preferences.PreferredModels; len(prefs) > 0 {
		out = slices.DeleteFunc(out, func(m domain.Model) bool {
			return !slices.Contains(prefs, m.Name)
		})
	}

	if avoid := task.Preferences.AvoidModels; len(avoid) > 0 {
		out = slices.DeleteFunc(out, func(m domain.Model) bool {
			return slices.Contains(avoid, m.Name)
		})
	}

	return out
}

// Rank returns eligible models ordered by descending score. Equal scores keep catalog order.
func Rank(models []domain.Model, task *domain.Task, taskType domain.TaskType) []Candidate {
	eligible := Eligible(models, task, taskType)

	candidates := make([]Candidate, len(eligible))
	for i, m := range eligible {
		candidates[i] = Candidate{Model: m, Score: Score(m, taskType)}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates
}

func Select(models []domain.Model, task *domain.Task, taskType domain.TaskType) (domain.Model, error) {
	ranked := Rank(models, task, taskType)
	if len(ranked) == 0 {
		return domain.Model{}, fmt.Errorf("%w for task type %q", domain.ErrNoEligibleModel, taskType)
	}
	return ranked[0].Model, nil
}
