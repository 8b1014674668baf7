package tags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/safeocr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cases := map[string]models.TagState{
		"/books/Atlas.pdf":                     models.Untouched,
		"/books/Atlas __OCRPIPE_ORIG__.pdf":    models.OriginalTagged,
		"/books/Atlas __OCRPIPE_OCR__.pdf":     models.ProcessedTagged,
		"/books/Atlas __OCRPIPE_TMP__.pdf":     models.Temporary,
		"/books/Atlas __OCRPIPE_OCR__ (2).pdf": models.ProcessedTagged,

		// Markers in a directory name do not tag the file.
		"/x __OCRPIPE_ORIG__/Atlas.pdf": models.Untouched,
	}
	for path, want := range cases {
		assert.Equal(t, want, Decode(path), path)
	}
}

func TestTaggedAndUntagged(t *testing.T) {
	src := filepath.Join("dir", "My Book.v2.pdf")

	orig, err := Tagged(src, models.OriginalTagged)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("dir", "My Book.v2 __OCRPIPE_ORIG__.pdf"), orig)

	back, state, ok := Untagged(orig)
	require.True(t, ok)
	assert.Equal(t, src, back)
	assert.Equal(t, models.OriginalTagged, state)

	_, err = Tagged(orig, models.Temporary)
	assert.Error(t, err)

	_, err = Tagged(src, models.Untouched)
	assert.Error(t, err)

	_, _, ok = Untagged(src)
	assert.False(t, ok)
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a __OCRPIPE_ORIG__.pdf")
	assert.Equal(t, p, UniquePath(p))

	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	assert.Equal(t, filepath.Join(dir, "a __OCRPIPE_ORIG__ (1).pdf"), UniquePath(p))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a __OCRPIPE_ORIG__ (1).pdf"), []byte("x"), 0o644))
	assert.Equal(t, filepath.Join(dir, "a __OCRPIPE_ORIG__ (2).pdf"), UniquePath(p))
}

func TestVariants(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a __OCRPIPE_ORIG__.pdf")
	got, err := Variants(p)
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, name := range []string{
		"a __OCRPIPE_ORIG__.pdf",
		"a __OCRPIPE_ORIG__ (1).pdf",
		"a __OCRPIPE_ORIG__ (3).pdf",
		"a __OCRPIPE_ORIG__ (x).pdf",
		"a __OCRPIPE_ORIG__ (01).pdf",
		"a __OCRPIPE_ORIG__ (2).txt",
		"ab __OCRPIPE_ORIG__ (2).pdf",
		"a __OCRPIPE_OCR__ (1).pdf",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	got, err = Variants(p)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a __OCRPIPE_ORIG__.pdf"),
		filepath.Join(dir, "a __OCRPIPE_ORIG__ (1).pdf"),
		filepath.Join(dir, "a __OCRPIPE_ORIG__ (3).pdf"),
	}, got)
}

func TestPlanPaths(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Scan.pdf")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Scan __OCRPIPE_OCR__.pdf"), []byte("old"), 0o644))

	p, err := PlanPaths(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Scan __OCRPIPE_TMP__.pdf"), p.Temp)
	assert.Equal(t, filepath.Join(dir, "Scan __OCRPIPE_ORIG__.pdf"), p.Original)
	assert.Equal(t, filepath.Join(dir, "Scan __OCRPIPE_OCR__ (1).pdf"), p.Processed)
}
