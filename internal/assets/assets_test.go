package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageExt(t *testing.T) {
	assert.True(t, IsImageExt("a.PNG"))
	assert.True(t, IsImageExt("/x/y/photo.jpeg"))
	assert.False(t, IsImageExt("notes.txt"))
	assert.False(t, IsImageExt("png"))
}

func TestListIconFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.gif", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	names, err := ListIconFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.gif", "b.png"}, names)

	names, err = ListIconFiles(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)
}
