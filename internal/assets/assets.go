package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImageExts are the file extensions accepted for icons and uploaded images.
var ImageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}

func IsImageExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExts {
		if e == ext {
			return true
		}
	}
	return false
}

// ListIconFiles returns the image file names in dir, sorted. A missing
// directory yields an empty list.
func ListIconFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list icons: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsImageExt(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
