package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/safeocr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{
		"b.pdf",
		"a.PDF",
		"nested/deep/c.pdf",
		"notes.txt",
		"d __OCRPIPE_ORIG__.pdf",
		"d __OCRPIPE_OCR__.pdf",
		"e __OCRPIPE_TMP__.pdf",
	} {
		writeFile(t, filepath.Join(root, name), "x")
	}

	docs, err := Scan(context.Background(), ScannerConfig{Root: root})
	require.NoError(t, err)

	var paths []string
	for _, d := range docs {
		assert.Equal(t, models.Untouched, d.TagState)
		assert.Equal(t, int64(1), d.SizeBytes)
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{
		filepath.Join(root, "a.PDF"),
		filepath.Join(root, "b.pdf"),
		filepath.Join(root, "nested/deep/c.pdf"),
	}, paths)
}

func TestScanExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "x")
	writeFile(t, filepath.Join(root, "b.tiff"), "x")

	docs, err := Scan(context.Background(), ScannerConfig{Root: root, Extensions: []string{"TIFF"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, filepath.Join(root, "b.tiff"), docs[0].Path)
}

func TestScanRootErrors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.pdf")
	writeFile(t, file, "x")

	_, err := Scan(context.Background(), ScannerConfig{Root: file})
	assert.ErrorIs(t, err, ErrScan)
	_, err = Scan(context.Background(), ScannerConfig{Root: filepath.Join(root, "missing")})
	assert.ErrorIs(t, err, ErrScan)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Scan(ctx, ScannerConfig{Root: root})
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestNormalizeExtensions(t *testing.T) {
	assert.Equal(t, []string{".pdf"}, NormalizeExtensions(nil))
	assert.Equal(t, []string{".pdf", ".tif"}, NormalizeExtensions([]string{"PDF", " .tif ", ""}))
}
