package main

import (
	"bytes"
	"testing"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/felipepmaragno/agentrouter/internal/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskFlags_Task(t *testing.T) {
	f := taskFlags{taskType: "summary", avoid: []string{"GPT-4o"}}

	task := f.task([]string{"summarize", "this"})

	assert.Equal(t, "summarize this", task.Input)
	assert.Equal(t, domain.TaskSummary, task.TaskType)
	require.NotNil(t, task.Preferences)
	assert.Equal(t, []string{"GPT-4o"}, task.Preferences.AvoidModels)

	assert.Nil(t, (&taskFlags{}).task([]string{"x"}).Preferences)
}

func TestWriteCandidates(t *testing.T) {
	var buf bytes.Buffer
	err := writeCandidates(&buf, domain.TaskGeneral, []selector.Candidate{
		{Model: domain.Model{Name: "B", Provider: "p2", QualityRating: 6, SpeedRating: 9, CostPerToken: 0.001}, Score: 205.7},
		{Model: domain.Model{Name: "A", Provider: "p1", QualityRating: 9, SpeedRating: 8, CostPerToken: 0.03}, Score: 13.57},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "task type: general")
	assert.Contains(t, out, "205.70")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("B ")), bytes.Index(buf.Bytes(), []byte("A ")))
}

func TestWriteModels(t *testing.T) {
	var buf bytes.Buffer
	err := writeModels(&buf, []domain.Model{{
		ID: "gpt-4o", Name: "GPT-4o", Provider: "openai", QualityRating: 10, SpeedRating: 8,
		CostPerToken: 0.005, SupportedTasks: []domain.TaskType{domain.TaskGeneral, domain.TaskCoding},
	}})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "general,coding")
	assert.Contains(t, buf.String(), "gpt-4o")
}
