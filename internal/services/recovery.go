package services

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/safeocr/internal/models"
	"github.com/Lllllllleong/safeocr/internal/tags"
)

// RecoveryAction is what the sweep decided for one leftover temp file.
type RecoveryAction string

const (
	RecoveryDiscardTemp  RecoveryAction = "discard_temp"
	RecoveryFinishCommit RecoveryAction = "finish_commit"
	RecoveryLeave        RecoveryAction = "leave"
)

// RecoveryItem reports one temp file found by the sweep.
type RecoveryItem struct {
	TempPath string
	Action   RecoveryAction
	Applied  bool
	Err      error
}

// RecoveryConfig scopes the sweep.
type RecoveryConfig struct {
	Root       string
	Extensions []string
	Execute    bool
}

// Recover finds temp-tagged files left behind by an interrupted run and
// either discards them or completes the commit they belong to. Without
// Execute it only reports.
func Recover(ctx context.Context, cfg RecoveryConfig) ([]RecoveryItem, error) {
	var temps []string
	err := walkMatching(ctx, cfg.Root, cfg.Extensions, func(path string, state models.TagState) {
		if state == models.Temporary {
			temps = append(temps, path)
		}
	})
	if err != nil {
		return nil, err
	}

	items := make([]RecoveryItem, 0, len(temps))
	for _, tmp := range temps {
		item := planRecovery(tmp)
		if cfg.Execute && item.Action != RecoveryLeave {
			item.Err = applyRecovery(tmp, item.Action)
			item.Applied = item.Err == nil
		}
		logCtx := slog.With("path", tmp, "action", string(item.Action), "applied", item.Applied)
		switch {
		case item.Err != nil:
			logCtx.Error("Recovery step failed.", "error", item.Err)
		case item.Action == RecoveryLeave:
			logCtx.Warn("Leftover temporary file does not match a known interruption pattern; leaving it.")
		default:
			logCtx.Info("Recovered leftover temporary file.")
		}
		items = append(items, item)
	}
	return items, nil
}

func planRecovery(tmp string) RecoveryItem {
	item := RecoveryItem{TempPath: tmp, Action: RecoveryLeave}
	source, _, ok := tags.Untagged(tmp)
	if !ok {
		return item
	}
	if exists(source) {
		item.Action = RecoveryDiscardTemp
		return item
	}
	orig, err := tags.Tagged(source, models.OriginalTagged)
	if err != nil {
		return item
	}
	processed, err := tags.Tagged(source, models.ProcessedTagged)
	if err != nil {
		return item
	}
	if !nonEmpty(tmp) {
		return item
	}
	// Every finished commit of this name left one original and one processed
	// file, possibly under " (n)" variants. Exactly one unmatched original
	// means the last commit stopped between its two renames.
	origs, err := tags.Variants(orig)
	if err != nil {
		return item
	}
	outputs, err := tags.Variants(processed)
	if err != nil {
		return item
	}
	if len(origs) == len(outputs)+1 {
		item.Action = RecoveryFinishCommit
	}
	return item
}

func applyRecovery(tmp string, action RecoveryAction) error {
	source, _, _ := tags.Untagged(tmp)
	switch action {
	case RecoveryDiscardTemp:
		return removeIfExists(tmp)
	case RecoveryFinishCommit:
		processed, err := tags.Tagged(source, models.ProcessedTagged)
		if err != nil {
			return err
		}
		processed = tags.UniquePath(processed)
		if err := os.Rename(tmp, processed); err != nil {
			return fmt.Errorf("%w: failed to promote %s: %v", ErrCommit, tmp, err)
		}
		syncDir(filepath.Dir(tmp))
		return nil
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// walkMatching visits every regular file under root whose extension is
// accepted, passing its decoded tag state.
func walkMatching(ctx context.Context, root string, exts []string, visit func(path string, state models.TagState)) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScan, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: root %s is not a directory", ErrScan, root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, ctxErr)
		}
		if err != nil {
			if path == root {
				return fmt.Errorf("%w: %v", ErrScan, err)
			}
			slog.Warn("Skipping unreadable path.", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !matchesExt(path, exts) {
			return nil
		}
		visit(path, tags.Decode(path))
		return nil
	})
}
