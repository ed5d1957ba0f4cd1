package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/taskcrypt/internal/models"
)

const taskJSON = `{
	"gid": "1201",
	"name": "Write report",
	"notes": "quarterly",
	"completed": true,
	"due_on": "2025-03-01",
	"assignee": {"gid": "9", "name": "Ana", "email": "ana@example.com"},
	"projects": [{"gid": "77", "name": "Ops"}],
	"custom_fields": [
		{"name": "Prioridad", "type": "enum", "enum_value": {"name": "High"}},
		{"name": "Estimated hours", "type": "number", "number_value": 2.5},
		{"name": "Hours spent", "type": "text"}
	]
}`

func TestItemFromTask(t *testing.T) {
	var task models.Task
	require.NoError(t, json.Unmarshal([]byte(taskJSON), &task))

	item := models.ItemFromTask(task, "Fallback")

	assert.Equal(t, "1201", item.ID)
	assert.Equal(t, "Ops", item.Project)
	assert.Equal(t, "Write report", item.Task)
	assert.Equal(t, "quarterly", item.Description)
	assert.Equal(t, models.StatusCompleted, item.Status)
	assert.Equal(t, "High", item.Priority)
	assert.Equal(t, "Ana", item.Owner)
	assert.Equal(t, "ana@example.com", item.OwnerEmail)
	assert.Equal(t, "2025-03-01", item.DueDate)
	require.NotNil(t, item.EstimatedHours)
	assert.Equal(t, 2.5, *item.EstimatedHours)
	assert.False(t, item.IsSubtask)
}

func TestItemFromTaskDefaults(t *testing.T) {
	item := models.ItemFromTask(models.Task{GID: "1", Name: "bare"}, "Fallback")

	assert.Equal(t, "Fallback", item.Project)
	assert.Equal(t, models.StatusPending, item.Status)
	assert.Equal(t, models.PriorityMedium, item.Priority)
	assert.Nil(t, item.EstimatedHours)
	assert.Empty(t, item.Owner)
}

func TestItemFromSubtask(t *testing.T) {
	item := models.ItemFromSubtask(models.Task{GID: "2", Name: "child"}, "Ops", "parent token", 2)

	assert.True(t, item.IsSubtask)
	assert.Equal(t, 2, item.Depth)
	assert.Equal(t, "parent token", item.ParentTask)
	assert.Equal(t, ">> >> child", item.DisplayName())
}

func TestItemGet(t *testing.T) {
	hours := 4.0
	item := models.Item{Task: "x", DueDate: "2025-01-02", EstimatedHours: &hours}

	assert.Equal(t, "x", item.Get(models.FieldTask))
	assert.Equal(t, "2025-01-02", item.Get(models.FieldDueDate))
	assert.Equal(t, 4.0, item.Get(models.FieldEstimatedHours))
	assert.Nil(t, item.Get("unknown"))

	item.EstimatedHours = nil
	assert.Nil(t, item.Get(models.FieldEstimatedHours))
}

func TestStoryIsComment(t *testing.T) {
	assert.True(t, models.Story{ResourceSubtype: models.StorySubtypeComment, Text: "hi"}.IsComment())
	assert.False(t, models.Story{ResourceSubtype: models.StorySubtypeComment}.IsComment())
	assert.False(t, models.Story{ResourceSubtype: "assigned", Text: "x"}.IsComment())
}

func TestSnapshot(t *testing.T) {
	snap := models.NewSnapshot("77", "Ops", []models.Item{{ID: "1"}, {ID: "2"}})

	assert.Equal(t, 2, snap.ItemCount())
	assert.False(t, snap.FetchedAt.IsZero())
}
