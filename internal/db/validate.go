package db

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/orrn/taskprinter/internal/config"
)

// ValidationError is returned for input that violates the submission limits.
// Handlers report it as a 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

var allowedFlairTypes = map[string]bool{
	"none":  true,
	"icon":  true,
	"image": true,
	"qr":    true,
	"emoji": true,
}

// HasControlChars reports whether s contains ASCII control characters other
// than newline, carriage return and tab.
func HasControlChars(s string) bool {
	for _, r := range s {
		if (r < 32 && r != '\n' && r != '\r' && r != '\t') || r == 127 {
			return true
		}
	}
	return false
}

// NormalizeFlairType lowercases t and maps the empty string to "none".
func NormalizeFlairType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "none"
	}
	return t
}

// ValidateSections checks a template's sections/tasks structure against
// limits. Every task needs text.
func ValidateSections(sections []Section, limits config.LimitsConfig) error {
	return validateSections(sections, limits, false)
}

// ValidateSubmission applies the same limits to a direct job submission,
// where blank tasks are allowed and skipped at print time.
func ValidateSubmission(sections []Section, limits config.LimitsConfig) error {
	return validateSections(sections, limits, true)
}

func validateSections(sections []Section, limits config.LimitsConfig, allowBlank bool) error {
	if len(sections) == 0 {
		return invalid("at least one section is required")
	}
	if len(sections) > limits.MaxSections {
		return invalid("too many sections (max %d)", limits.MaxSections)
	}

	total := 0
	for si, sec := range sections {
		n := si + 1
		subtitle := strings.TrimSpace(sec.Subtitle)
		if subtitle == "" {
			return invalid("section %d subtitle is required", n)
		}
		if utf8.RuneCountInString(subtitle) > limits.MaxCategoryLen {
			return invalid("subtitle in section %d is too long (max %d)", n, limits.MaxCategoryLen)
		}
		if HasControlChars(subtitle) {
			return invalid("subtitles cannot contain control characters")
		}
		total += utf8.RuneCountInString(subtitle)

		if len(sec.Tasks) == 0 {
			return invalid("section %d must contain at least one task", n)
		}
		if len(sec.Tasks) > limits.MaxTasksPerSection {
			return invalid("too many tasks in section %d (max %d)", n, limits.MaxTasksPerSection)
		}

		for ti, task := range sec.Tasks {
			tn := ti + 1
			text := strings.TrimSpace(task.Text)
			if text == "" {
				if allowBlank {
					continue
				}
				return invalid("task %d in section %d is required", tn, n)
			}
			if utf8.RuneCountInString(text) > limits.MaxTaskLen {
				return invalid("task %d in section %d is too long (max %d)", tn, n, limits.MaxTaskLen)
			}
			if HasControlChars(text) {
				return invalid("tasks cannot contain control characters")
			}
			total += utf8.RuneCountInString(text)

			ftype := NormalizeFlairType(task.FlairType)
			if !allowedFlairTypes[ftype] {
				return invalid("invalid flair_type in section %d task %d: %q", n, tn, task.FlairType)
			}
			if ftype == "qr" {
				if utf8.RuneCountInString(task.FlairValue) > limits.MaxQRLen {
					return invalid("QR data too long in section %d task %d (max %d)", n, tn, limits.MaxQRLen)
				}
				if HasControlChars(task.FlairValue) {
					return invalid("QR data cannot contain control characters")
				}
			}
			if ftype != "none" && strings.TrimSpace(task.FlairValue) == "" {
				return invalid("flair_value is required for %s flair in section %d task %d", ftype, n, tn)
			}
			if m := task.Metadata; m != nil {
				for _, v := range []string{m.Assigned, m.Due, m.Priority, m.Assignee} {
					if HasControlChars(v) {
						return invalid("metadata cannot contain control characters")
					}
				}
			}
		}
	}

	if total > limits.MaxTotalChars {
		return invalid("input too large (max total characters %d)", limits.MaxTotalChars)
	}
	return nil
}

// ValidateTemplate checks the template header and its structure.
func ValidateTemplate(t *Template, limits config.LimitsConfig) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return invalid("template name is required")
	}
	if HasControlChars(name) {
		return invalid("template name cannot contain control characters")
	}
	if HasControlChars(t.Notes) {
		return invalid("template notes cannot contain control characters")
	}
	return ValidateSections(t.Sections, limits)
}
