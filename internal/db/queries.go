package db

const (
	InsertTemplate = `
		INSERT INTO templates (name, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`

	GetTemplateByID = `
		SELECT id, name, notes, created_at, updated_at, last_used_at
		FROM templates WHERE id = ?
	`

	TemplateNameExists = `SELECT 1 FROM templates WHERE name = ?`

	ListTemplates = `
		SELECT
			t.id, t.name, t.notes, t.created_at, t.updated_at, t.last_used_at,
			(SELECT COUNT(*) FROM template_sections s WHERE s.template_id = t.id),
			(SELECT COUNT(*) FROM template_tasks tk
				JOIN template_sections s2 ON tk.section_id = s2.id
				WHERE s2.template_id = t.id)
		FROM templates t
		ORDER BY t.updated_at DESC, t.id DESC
	`

	UpdateTemplate = `UPDATE templates SET name = ?, notes = ?, updated_at = ? WHERE id = ?`

	DeleteTemplate = `DELETE FROM templates WHERE id = ?`

	TouchTemplate = `UPDATE templates SET last_used_at = ? WHERE id = ?`
)

const (
	InsertSection = `
		INSERT INTO template_sections (template_id, subtitle, position)
		VALUES (?, ?, ?)
	`

	ListSections = `
		SELECT id, subtitle, position FROM template_sections
		WHERE template_id = ? ORDER BY position ASC
	`

	DeleteSections = `DELETE FROM template_sections WHERE template_id = ?`

	InsertTask = `
		INSERT INTO template_tasks (section_id, text, position, flair_type, flair_value, flair_size,
			assigned, due, priority, assignee)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ListTasks = `
		SELECT tk.id, tk.section_id, tk.text, tk.position, tk.flair_type, tk.flair_value, tk.flair_size,
			tk.assigned, tk.due, tk.priority, tk.assignee
		FROM template_tasks tk
		JOIN template_sections s ON tk.section_id = s.id
		WHERE s.template_id = ?
		ORDER BY s.position ASC, tk.position ASC
	`

	DeleteTasks = `
		DELETE FROM template_tasks
		WHERE section_id IN (SELECT id FROM template_sections WHERE template_id = ?)
	`
)

const (
	GetSetting = `SELECT value, encrypted, updated_at FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, encrypted = ?, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`

	ListSettings = `SELECT key, value, encrypted, updated_at FROM settings ORDER BY key ASC`
)
