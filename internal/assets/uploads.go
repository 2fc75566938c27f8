package assets

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidUploadPath = errors.New("invalid upload path")
	ErrUnsupportedImage  = errors.New("unsupported image type")
)

// CheckUploadName reports whether name can refer to a file inside an
// uploads directory: a relative image path with no ".." element.
func CheckUploadName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidUploadPath)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || filepath.VolumeName(name) != "" {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidUploadPath, name)
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("%w: %q leaves the uploads directory", ErrInvalidUploadPath, name)
		}
	}
	if !IsImageExt(name) {
		return fmt.Errorf("%w: %q", ErrUnsupportedImage, name)
	}
	return nil
}

// ResolveUpload maps an image flair value to a file inside dir.
func ResolveUpload(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: no uploads directory", ErrInvalidUploadPath)
	}
	if err := CheckUploadName(name); err != nil {
		return "", err
	}

	root := filepath.Clean(dir)
	full := filepath.Join(root, filepath.FromSlash(strings.TrimSpace(name)))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q leaves the uploads directory", ErrInvalidUploadPath, name)
	}
	return full, nil
}

// UploadName returns a fresh stored file name for an upload, keeping the
// lower-cased extension of the original name.
func UploadName(original string) (string, error) {
	if !IsImageExt(original) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, original)
	}
	return uuid.NewString() + strings.ToLower(filepath.Ext(original)), nil
}
