package services

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitFixture(t *testing.T) (source, temp string) {
	t.Helper()
	dir := t.TempDir()
	source = filepath.Join(dir, "report.pdf")
	temp = filepath.Join(dir, "report __OCRPIPE_TMP__.pdf")
	require.NoError(t, os.WriteFile(source, []byte("original bytes"), 0o644))
	require.NoError(t, os.WriteFile(temp, []byte("ocr bytes"), 0o644))
	return source, temp
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCommit(t *testing.T) {
	source, temp := commitFixture(t)
	dir := filepath.Dir(source)

	res, err := NewCommitter().Commit(source, temp)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "report __OCRPIPE_ORIG__.pdf"), res.OriginalPath)
	assert.Equal(t, filepath.Join(dir, "report __OCRPIPE_OCR__.pdf"), res.ProcessedPath)
	assert.Equal(t, "original bytes", readString(t, res.OriginalPath))
	assert.Equal(t, "ocr bytes", readString(t, res.ProcessedPath))
	assert.NoFileExists(t, source)
	assert.NoFileExists(t, temp)
}

func TestCommitAvoidsExistingTaggedNames(t *testing.T) {
	source, temp := commitFixture(t)
	dir := filepath.Dir(source)
	taken := filepath.Join(dir, "report __OCRPIPE_ORIG__.pdf")
	require.NoError(t, os.WriteFile(taken, []byte("older run"), 0o644))

	res, err := NewCommitter().Commit(source, temp)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "report __OCRPIPE_ORIG__ (1).pdf"), res.OriginalPath)
	assert.Equal(t, "older run", readString(t, taken))
	assert.Equal(t, "original bytes", readString(t, res.OriginalPath))
}

func TestCommitRejectsEmptyTemp(t *testing.T) {
	source, temp := commitFixture(t)
	require.NoError(t, os.WriteFile(temp, nil, 0o644))

	_, err := NewCommitter().Commit(source, temp)
	assert.ErrorIs(t, err, ErrCommit)
	assert.Equal(t, "original bytes", readString(t, source))
	assert.NoFileExists(t, temp)
}

func TestCommitStepOneFailure(t *testing.T) {
	source, temp := commitFixture(t)
	c := NewCommitter()
	c.rename = func(oldpath, newpath string) error {
		return errors.New("permission denied")
	}

	_, err := c.Commit(source, temp)
	assert.ErrorIs(t, err, ErrCommit)
	assert.Equal(t, "original bytes", readString(t, source))
	assert.NoFileExists(t, temp)
}

func TestCommitStepTwoFailureRollsBack(t *testing.T) {
	source, temp := commitFixture(t)
	c := NewCommitter()
	c.rename = func(oldpath, newpath string) error {
		if oldpath == temp {
			return errors.New("disk full")
		}
		return os.Rename(oldpath, newpath)
	}

	res, err := c.Commit(source, temp)
	assert.ErrorIs(t, err, ErrCommit)
	assert.Empty(t, res.OriginalPath)
	assert.Equal(t, "original bytes", readString(t, source))
	assert.NoFileExists(t, temp)
	entries, err := os.ReadDir(filepath.Dir(source))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCommitRollbackFailureKeepsTaggedOriginal(t *testing.T) {
	source, temp := commitFixture(t)
	c := NewCommitter()
	c.rename = func(oldpath, newpath string) error {
		if oldpath == source {
			return os.Rename(oldpath, newpath)
		}
		return errors.New("device gone")
	}

	res, err := c.Commit(source, temp)
	assert.ErrorIs(t, err, ErrCommit)
	assert.True(t, strings.Contains(err.Error(), "rollback failed"))
	assert.Equal(t, "original bytes", readString(t, res.OriginalPath))
	assert.Equal(t, "ocr bytes", readString(t, temp))
}

func TestDiscardOnlyRemovesTempTaggedFiles(t *testing.T) {
	source, temp := commitFixture(t)
	c := NewCommitter()
	c.discard(source)
	assert.FileExists(t, source)
	c.discard(temp)
	assert.NoFileExists(t, temp)
}
