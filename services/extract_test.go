package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-base-service/internal/config"
	"knowledge-base-service/internal/crawler"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractPlainText(t *testing.T) {
	ex := NewFileExtractor(&config.Config{MaxFileSize: 1 << 20})
	path := writeTemp(t, "notes.md", "# Notes\n\nSome content.\n")

	text, err := ex.Extract(path, "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n\nSome content.\n", text)
}

func TestExtractUnsupportedExtension(t *testing.T) {
	ex := NewFileExtractor(&config.Config{MaxFileSize: 1 << 20})
	path := writeTemp(t, "archive.zip", "not really a zip")

	_, err := ex.Extract(path, "archive.zip")
	require.ErrorIs(t, err, crawler.ErrUnsupportedFormat)
}

func TestExtractRejectsOversizeFile(t *testing.T) {
	ex := NewFileExtractor(&config.Config{MaxFileSize: 4})
	path := writeTemp(t, "big.txt", "more than four bytes")

	_, err := ex.Extract(path, "big.txt")
	require.ErrorIs(t, err, crawler.ErrTooLarge)
}

func TestExtractMissingFile(t *testing.T) {
	ex := NewFileExtractor(&config.Config{MaxFileSize: 1 << 20})
	_, err := ex.Extract(filepath.Join(t.TempDir(), "gone.txt"), "gone.txt")
	require.Error(t, err)
}
