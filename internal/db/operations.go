package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/orrn/taskprinter/internal/config"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("template name already exists")
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type TemplateOperations struct {
	db     *sql.DB
	limits config.LimitsConfig
	now    func() time.Time
}

func NewTemplateOperations(conn *sql.DB, limits config.LimitsConfig) *TemplateOperations {
	return &TemplateOperations{db: conn, limits: limits, now: time.Now}
}

// CreateTemplate validates t and inserts it with its sections and tasks.
// t.ID and the timestamps are filled in on success.
func (o *TemplateOperations) CreateTemplate(ctx context.Context, t *Template) error {
	if err := ValidateTemplate(t, o.limits); err != nil {
		return err
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := o.now().UTC()
	result, err := tx.ExecContext(ctx, InsertTemplate, strings.TrimSpace(t.Name), strings.TrimSpace(t.Notes), now, now)
	if err != nil {
		return wrapWriteErr("create template", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get template id: %w", err)
	}
	if err := insertSections(ctx, tx, id, t.Sections); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit template: %w", err)
	}

	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (o *TemplateOperations) GetTemplateByID(ctx context.Context, id int64) (*Template, error) {
	t := &Template{}
	var lastUsed sql.NullTime
	err := o.db.QueryRowContext(ctx, GetTemplateByID, id).Scan(
		&t.ID, &t.Name, &t.Notes, &t.CreatedAt, &t.UpdatedAt, &lastUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}

	sections, err := o.loadSections(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Sections = sections
	return t, nil
}

func (o *TemplateOperations) loadSections(ctx context.Context, templateID int64) ([]Section, error) {
	rows, err := o.db.QueryContext(ctx, ListSections, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	var sections []Section
	index := make(map[int64]int)
	for rows.Next() {
		var s Section
		if err := rows.Scan(&s.ID, &s.Subtitle, &s.Position); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		index[s.ID] = len(sections)
		sections = append(sections, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	taskRows, err := o.db.QueryContext(ctx, ListTasks, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer taskRows.Close()

	for taskRows.Next() {
		var (
			task      Task
			sectionID int64
			size      sql.NullInt64
			md        TaskMetadata
		)
		if err := taskRows.Scan(&task.ID, &sectionID, &task.Text, &task.Position, &task.FlairType,
			&task.FlairValue, &size, &md.Assigned, &md.Due, &md.Priority, &md.Assignee); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if size.Valid {
			v := int(size.Int64)
			task.FlairSize = &v
		}
		if !md.empty() {
			task.Metadata = &md
		}
		i, ok := index[sectionID]
		if !ok {
			continue
		}
		sections[i].Tasks = append(sections[i].Tasks, task)
	}
	return sections, taskRows.Err()
}

// ListTemplates returns summaries ordered by most recently updated.
func (o *TemplateOperations) ListTemplates(ctx context.Context) ([]*TemplateSummary, error) {
	rows, err := o.db.QueryContext(ctx, ListTemplates)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []*TemplateSummary{}
	for rows.Next() {
		s := &TemplateSummary{}
		var lastUsed sql.NullTime
		if err := rows.Scan(&s.ID, &s.Name, &s.Notes, &s.CreatedAt, &s.UpdatedAt, &lastUsed,
			&s.SectionsCount, &s.TasksCount); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if lastUsed.Valid {
			s.LastUsedAt = &lastUsed.Time
		}
		templates = append(templates, s)
	}
	return templates, rows.Err()
}

// UpdateTemplate replaces the name, notes and structure of an existing
// template in one transaction.
func (o *TemplateOperations) UpdateTemplate(ctx context.Context, t *Template) error {
	if err := ValidateTemplate(t, o.limits); err != nil {
		return err
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := o.now().UTC()
	result, err := tx.ExecContext(ctx, UpdateTemplate, strings.TrimSpace(t.Name), strings.TrimSpace(t.Notes), now, t.ID)
	if err != nil {
		return wrapWriteErr("update template", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := deleteChildren(ctx, tx, t.ID); err != nil {
		return err
	}
	if err := insertSections(ctx, tx, t.ID, t.Sections); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit template: %w", err)
	}
	t.UpdatedAt = now
	return nil
}

func (o *TemplateOperations) DeleteTemplate(ctx context.Context, id int64) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteChildren(ctx, tx, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, DeleteTemplate, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// DuplicateTemplate copies a template. Without newName the copy is called
// "<name> Copy"; a taken name gets " 2", " 3", ... appended.
func (o *TemplateOperations) DuplicateTemplate(ctx context.Context, id int64, newName string) (*Template, error) {
	src, err := o.GetTemplateByID(ctx, id)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSpace(newName)
	if base == "" {
		base = src.Name + " Copy"
	}
	candidate := base
	for i := 2; ; i++ {
		taken, err := o.nameExists(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if !taken {
			break
		}
		candidate = fmt.Sprintf("%s %d", base, i)
	}

	dup := &Template{Name: candidate, Notes: src.Notes, Sections: src.Sections}
	if err := o.CreateTemplate(ctx, dup); err != nil {
		return nil, err
	}
	return dup, nil
}

func (o *TemplateOperations) nameExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := o.db.QueryRowContext(ctx, TemplateNameExists, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check template name: %w", err)
	}
	return true, nil
}

// TouchLastUsed stamps last_used_at, used when a template is printed.
func (o *TemplateOperations) TouchLastUsed(ctx context.Context, id int64) error {
	result, err := o.db.ExecContext(ctx, TouchTemplate, o.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch template: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func insertSections(ctx context.Context, tx *sql.Tx, templateID int64, sections []Section) error {
	for i, sec := range sections {
		result, err := tx.ExecContext(ctx, InsertSection, templateID, strings.TrimSpace(sec.Subtitle), i)
		if err != nil {
			return fmt.Errorf("failed to insert section: %w", err)
		}
		sectionID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get section id: %w", err)
		}
		for j, task := range sec.Tasks {
			if err := insertTask(ctx, tx, sectionID, j, task); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertTask(ctx context.Context, ex execer, sectionID int64, position int, task Task) error {
	md := task.Metadata
	if md == nil {
		md = &TaskMetadata{}
	}
	var size any
	if task.FlairSize != nil {
		size = *task.FlairSize
	}
	_, err := ex.ExecContext(ctx, InsertTask,
		sectionID, strings.TrimSpace(task.Text), position,
		NormalizeFlairType(task.FlairType), strings.TrimSpace(task.FlairValue), size,
		strings.TrimSpace(md.Assigned), strings.TrimSpace(md.Due),
		strings.TrimSpace(md.Priority), strings.TrimSpace(md.Assignee))
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func deleteChildren(ctx context.Context, tx *sql.Tx, templateID int64) error {
	if _, err := tx.ExecContext(ctx, DeleteTasks, templateID); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, DeleteSections, templateID); err != nil {
		return fmt.Errorf("failed to delete sections: %w", err)
	}
	return nil
}

func wrapWriteErr(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicateName
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

type SettingsOperations struct {
	db *sql.DB
}

func NewSettingsOperations(conn *sql.DB) *SettingsOperations {
	return &SettingsOperations{db: conn}
}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{Key: key}
	err := o.db.QueryRowContext(ctx, GetSetting, key).Scan(&s.Value, &s.Encrypted, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string, encrypted bool) error {
	_, err := o.db.ExecContext(ctx, SetSetting, key, value, encrypted, value, encrypted)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (o *SettingsOperations) DeleteSetting(ctx context.Context, key string) error {
	_, err := o.db.ExecContext(ctx, DeleteSetting, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

func (o *SettingsOperations) ListSettings(ctx context.Context) ([]*Setting, error) {
	rows, err := o.db.QueryContext(ctx, ListSettings)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []*Setting
	for rows.Next() {
		s := &Setting{}
		if err := rows.Scan(&s.Key, &s.Value, &s.Encrypted, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}
