package models

import (
	"strings"
	"time"
)

// Status values derived from task completion.
const (
	StatusPending    = "Pending"
	StatusInProgress = "In progress"
	StatusCompleted  = "Completed"
	StatusBlocked    = "Blocked"
)

// Priority values read from a priority custom field.
const (
	PriorityLow      = "Low"
	PriorityMedium   = "Medium"
	PriorityHigh     = "High"
	PriorityCritical = "Critical"
)

// StatusValues lists the known statuses in display order.
var StatusValues = []string{StatusPending, StatusInProgress, StatusCompleted, StatusBlocked}

// PriorityValues lists the known priorities in display order.
var PriorityValues = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Item field keys used by filtering, sorting and editing.
const (
	FieldProject        = "project"
	FieldTask           = "task"
	FieldDescription    = "description"
	FieldStatus         = "status"
	FieldPriority       = "priority"
	FieldOwner          = "owner"
	FieldOwnerEmail     = "ownerEmail"
	FieldDueDate        = "dueDate"
	FieldEstimatedHours = "estimatedHours"
)

// SubtaskPrefix marks one level of nesting in displayed task names.
const SubtaskPrefix = ">> "

// Item is the flat row view of a task used by the record store.
type Item struct {
	ID             string   `json:"id"`
	Project        string   `json:"project"`
	Task           string   `json:"task"`
	Description    string   `json:"description"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	Owner          string   `json:"owner"`
	OwnerEmail     string   `json:"ownerEmail"`
	DueDate        string   `json:"dueDate"`
	EstimatedHours *float64 `json:"estimatedHours"`
	IsSubtask      bool     `json:"isSubtask"`
	Depth          int      `json:"depth"`
	ParentTask     string   `json:"parentTask,omitempty"`
}

// Get returns the value of a field by key, or nil for unknown keys and
// unset hours.
func (i *Item) Get(key string) interface{} {
	switch key {
	case FieldProject:
		return i.Project
	case FieldTask:
		return i.Task
	case FieldDescription:
		return i.Description
	case FieldStatus:
		return i.Status
	case FieldPriority:
		return i.Priority
	case FieldOwner:
		return i.Owner
	case FieldOwnerEmail:
		return i.OwnerEmail
	case FieldDueDate:
		return i.DueDate
	case FieldEstimatedHours:
		if i.EstimatedHours == nil {
			return nil
		}
		return *i.EstimatedHours
	default:
		return nil
	}
}

// DisplayName returns the task name prefixed by one SubtaskPrefix per
// nesting level.
func (i *Item) DisplayName() string {
	return strings.Repeat(SubtaskPrefix, i.Depth) + i.Task
}

// ItemFromTask maps a top-level task to an Item. The project name falls
// back to fallbackProject when the task carries none.
func ItemFromTask(task Task, fallbackProject string) Item {
	item := Item{
		ID:          task.GID,
		Project:     fallbackProject,
		Task:        task.Name,
		Description: task.Notes,
		Status:      StatusPending,
		Priority:    PriorityMedium,
		DueDate:     task.DueOn,
	}

	if len(task.Projects) > 0 && task.Projects[0].Name != "" {
		item.Project = task.Projects[0].Name
	}

	if task.Assignee != nil {
		item.Owner = task.Assignee.Name
		item.OwnerEmail = task.Assignee.Email
	}

	if task.Completed {
		item.Status = StatusCompleted
	}

	// Priority and hours come from custom fields matched by name.
	for _, cf := range task.CustomFields {
		if fieldNameMatches(cf.Name, "priority", "prioridad") &&
			cf.Type == "enum" && cf.EnumValue != nil && cf.EnumValue.Name != "" {
			item.Priority = cf.EnumValue.Name
		}
		if fieldNameMatches(cf.Name, "estimated", "hours", "horas") &&
			cf.Type == "number" && cf.NumberValue != nil {
			hours := *cf.NumberValue
			item.EstimatedHours = &hours
		}
	}

	return item
}

// ItemFromSubtask maps a subtask at depth under parentName.
func ItemFromSubtask(task Task, fallbackProject, parentName string, depth int) Item {
	item := ItemFromTask(task, fallbackProject)
	item.IsSubtask = true
	item.Depth = depth
	item.ParentTask = parentName
	return item
}

// Snapshot is a project's items as fetched, before any decryption.
type Snapshot struct {
	ProjectID   string    `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Items       []Item    `json:"items"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// NewSnapshot creates a snapshot stamped with the current time.
func NewSnapshot(projectID, projectName string, items []Item) *Snapshot {
	return &Snapshot{
		ProjectID:   projectID,
		ProjectName: projectName,
		Items:       items,
		FetchedAt:   time.Now().UTC(),
	}
}

// ItemCount returns the number of items in the snapshot.
func (s *Snapshot) ItemCount() int {
	return len(s.Items)
}
