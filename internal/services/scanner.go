package services

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Lllllllleong/safeocr/internal/models"
)

// ScannerConfig scopes the directory walk.
type ScannerConfig struct {
	Root       string
	Extensions []string
}

// Scan lists the untagged candidate documents under the root in lexical
// order. Files carrying any tag marker are never candidates.
func Scan(ctx context.Context, cfg ScannerConfig) ([]models.Document, error) {
	var docs []models.Document
	err := walkMatching(ctx, cfg.Root, cfg.Extensions, func(path string, state models.TagState) {
		if state != models.Untouched {
			return
		}
		docs = append(docs, models.Document{Path: path, TagState: state, SizeBytes: fileSize(path)})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// NormalizeExtensions lower-cases extensions and makes sure each starts
// with a dot.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return []string{".pdf"}
	}
	return out
}

func matchesExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range NormalizeExtensions(exts) {
		if ext == e {
			return true
		}
	}
	return false
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
