package models

import (
	"strings"
	"time"
)

// Story subtypes
const (
	StorySubtypeComment = "comment_added"
)

// Workspace is an Asana workspace or organization.
type Workspace struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Team groups projects inside an organization.
type Team struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Project holds tasks.
type Project struct {
	GID      string `json:"gid"`
	Name     string `json:"name"`
	Archived bool   `json:"archived,omitempty"`
}

// User is an assignee or a story author.
type User struct {
	GID   string `json:"gid,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Me is the user a token belongs to, with the workspaces it can reach.
type Me struct {
	User
	Workspaces []Workspace `json:"workspaces,omitempty"`
}

// TokenInfo is a saved personal access token.
type TokenInfo struct {
	Token   string    `json:"token"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	SavedAt time.Time `json:"saved_at"`
}

// Tag is a task label.
type Tag struct {
	GID   string `json:"gid,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// EnumValue is the selected option of an enum custom field.
type EnumValue struct {
	GID  string `json:"gid,omitempty"`
	Name string `json:"name"`
}

// CustomField carries a per-project field value.
type CustomField struct {
	GID         string     `json:"gid,omitempty"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	EnumValue   *EnumValue `json:"enum_value,omitempty"`
	NumberValue *float64   `json:"number_value,omitempty"`
}

// Task is an Asana task or subtask. Name and Notes may hold envelope
// tokens.
type Task struct {
	GID          string        `json:"gid"`
	Name         string        `json:"name"`
	Notes        string        `json:"notes,omitempty"`
	Completed    bool          `json:"completed"`
	DueOn        string        `json:"due_on,omitempty"`
	Assignee     *User         `json:"assignee,omitempty"`
	Projects     []Project     `json:"projects,omitempty"`
	Tags         []Tag         `json:"tags,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

// Story is an entry in a task's activity feed.
type Story struct {
	GID             string    `json:"gid"`
	Text            string    `json:"text"`
	ResourceSubtype string    `json:"resource_subtype"`
	CreatedAt       time.Time `json:"created_at"`
	CreatedBy       *User     `json:"created_by,omitempty"`
}

// IsComment reports whether the story is a user comment with text.
func (s Story) IsComment() bool {
	return s.ResourceSubtype == StorySubtypeComment && s.Text != ""
}

// Author returns the creator name or an empty string.
func (s Story) Author() string {
	if s.CreatedBy == nil {
		return ""
	}
	return s.CreatedBy.Name
}

// Attachment is a file attached to a task. Name may hold an envelope
// token.
type Attachment struct {
	GID          string    `json:"gid"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	DownloadURL  string    `json:"download_url,omitempty"`
	ResourceType string    `json:"resource_type,omitempty"`
}

// TaskDetail is a single task with its decrypted display fields.
type TaskDetail struct {
	Task
	Encrypted bool `json:"encrypted"` // name or notes were stored as tokens
}

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Name     string   `json:"name"`
	Projects []string `json:"projects,omitempty"`
	Parent   string   `json:"parent,omitempty"`
	DueOn    string   `json:"due_on,omitempty"`
}

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	Name      string `json:"name"`
	Team      string `json:"team,omitempty"`
	Workspace string `json:"workspace,omitempty"`
}

func fieldNameMatches(name string, needles ...string) bool {
	name = strings.ToLower(name)
	for _, n := range needles {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}
