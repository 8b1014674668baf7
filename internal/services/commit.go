package services

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/safeocr/internal/models"
	"github.com/Lllllllleong/safeocr/internal/tags"
)

// CommitResult names the two files a committed document ends up as.
type CommitResult struct {
	OriginalPath  string
	ProcessedPath string
}

// Committer performs the two-rename commit of a verified OCR output.
//
// Step 1 renames the source to its original-tagged name; step 2 renames the
// temp output to its processed-tagged name. Step 2 is never attempted unless
// step 1 succeeded, so an interruption between them leaves the original
// under its tagged name and a temp file that Recover can finish.
type Committer struct {
	rename func(oldpath, newpath string) error
}

func NewCommitter() *Committer {
	return &Committer{rename: os.Rename}
}

func (c *Committer) Commit(source, temp string) (CommitResult, error) {
	if info, err := os.Stat(temp); err != nil || info.Size() == 0 {
		c.discard(temp)
		return CommitResult{}, fmt.Errorf("%w: temp output %s is missing or empty", ErrCommit, temp)
	}

	paths, err := tags.PlanPaths(source)
	if err != nil {
		c.discard(temp)
		return CommitResult{}, fmt.Errorf("%w: %v", ErrCommit, err)
	}

	if err := c.rename(source, paths.Original); err != nil {
		c.discard(temp)
		return CommitResult{}, fmt.Errorf("%w: failed to tag original %s: %v", ErrCommit, source, err)
	}

	if err := c.rename(temp, paths.Processed); err != nil {
		stepErr := fmt.Errorf("%w: failed to promote %s: %v", ErrCommit, temp, err)
		if rbErr := c.rename(paths.Original, source); rbErr != nil {
			// The original bytes stay recoverable under the tagged name.
			slog.Error("CRITICAL: Rollback of original rename failed.", "original", paths.Original, "source", source, "error", rbErr)
			return CommitResult{OriginalPath: paths.Original}, fmt.Errorf("%w (rollback failed, original kept at %s: %v)", stepErr, paths.Original, rbErr)
		}
		c.discard(temp)
		return CommitResult{}, stepErr
	}

	syncDir(filepath.Dir(source))
	return CommitResult{OriginalPath: paths.Original, ProcessedPath: paths.Processed}, nil
}

func (c *Committer) discard(temp string) {
	if tags.Decode(temp) != models.Temporary {
		slog.Error("Refusing to delete a file that is not temp-tagged.", "path", temp)
		return
	}
	if err := removeIfExists(temp); err != nil {
		slog.Error("Failed to remove temporary output.", "path", temp, "error", err)
	}
}

// syncDir flushes directory entries so completed renames survive a crash.
// Not every platform supports it, so errors are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
