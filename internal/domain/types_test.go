package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskType_Valid(t *testing.T) {
	tests := []struct {
		taskType TaskType
		want     bool
	}{
		{TaskSummary, true},
		{TaskTranslation, true},
		{TaskAnalysis, true},
		{TaskGeneral, true},
		{TaskCoding, true},
		{"poetry", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.taskType), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.taskType.Valid())
		})
	}
}

func TestModel_Supports(t *testing.T) {
	m := Model{SupportedTasks: []TaskType{TaskGeneral, TaskSummary}}

	assert.True(t, m.Supports(TaskGeneral))
	assert.True(t, m.Supports(TaskSummary))
	assert.False(t, m.Supports(TaskCoding))
}

func TestConfigurationError_UnwrapsToSentinel(t *testing.T) {
	err := error(&ConfigurationError{ModelID: "m1", Field: "cost_per_token", Reason: "must be greater than zero"})

	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), `model "m1"`)

	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "cost_per_token", cfgErr.Field)
}
