// Package classifier maps free text to a task type using keyword heuristics.
package classifier

import (
	"strings"

	"github.com/felipepmaragno/agentrouter/internal/domain"
)

type rule struct {
	keywords []string
	taskType domain.TaskType
}

// Evaluated in order; the first rule with a matching keyword wins.
var rules = []rule{
	{keywords: []string{"resume", "summarize"}, taskType: domain.TaskSummary},
	{keywords: []string{"translate", "traducir"}, taskType: domain.TaskTranslation},
	{keywords: []string{"analyze", "analizar"}, taskType: domain.TaskAnalysis},
}

// Classify never fails: input matching no rule is general, which every catalog model supports.
func Classify(input string) domain.TaskType {
	lower := strings.ToLower(input)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.taskType
			}
		}
	}
	return domain.TaskGeneral
}
