package classifier

import (
	"testing"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  domain.TaskType
	}{
		{"summarize", "Please summarize this article", domain.TaskSummary},
		{"resume spanish", "Haz un resume del texto", domain.TaskSummary},
		{"translate", "Translate this to French", domain.TaskTranslation},
		{"traducir", "Puedes traducir esto?", domain.TaskTranslation},
		{"analyze", "ANALYZE the quarterly numbers", domain.TaskAnalysis},
		{"analizar", "quiero analizar datos", domain.TaskAnalysis},
		{"general", "hello world", domain.TaskGeneral},
		{"empty", "", domain.TaskGeneral},
		{"substring match", "the analyzer broke", domain.TaskAnalysis},
		{"summary beats translation", "translate and then resume it", domain.TaskSummary},
		{"translation beats analysis", "analyze then translate", domain.TaskTranslation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.input))
		})
	}
}
