package db

import (
	"time"
)

// Template is a named, reusable task list.
type Template struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Notes      string     `json:"notes"`
	Sections   []Section  `json:"sections,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

type Section struct {
	ID       int64  `json:"id,omitempty"`
	Subtitle string `json:"subtitle"`
	Position int    `json:"position"`
	Tasks    []Task `json:"tasks"`
}

type Task struct {
	ID         int64         `json:"id,omitempty"`
	Text       string        `json:"text"`
	Position   int           `json:"position"`
	FlairType  string        `json:"flair_type"`
	FlairValue string        `json:"flair_value,omitempty"`
	FlairSize  *int          `json:"flair_size,omitempty"`
	Metadata   *TaskMetadata `json:"metadata,omitempty"`
}

type TaskMetadata struct {
	Assigned string `json:"assigned,omitempty"`
	Due      string `json:"due,omitempty"`
	Priority string `json:"priority,omitempty"`
	Assignee string `json:"assignee,omitempty"`
}

func (m *TaskMetadata) empty() bool {
	return m == nil || (m.Assigned == "" && m.Due == "" && m.Priority == "" && m.Assignee == "")
}

// TemplateSummary is a list row with child counts.
type TemplateSummary struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Notes         string     `json:"notes"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastUsedAt    *time.Time `json:"last_used_at"`
	SectionsCount int        `json:"sections_count"`
	TasksCount    int        `json:"tasks_count"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}
