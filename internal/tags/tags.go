// Package tags owns the filename markers that record a document's role on
// disk. Nothing else in the module inspects file names for markers.
package tags

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Lllllllleong/safeocr/internal/models"
)

// Markers are chosen to be unlikely to collide with real file names.
const (
	OriginalMarker  = " __OCRPIPE_ORIG__"
	ProcessedMarker = " __OCRPIPE_OCR__"
	TempMarker      = " __OCRPIPE_TMP__"
)

var markers = []struct {
	state  models.TagState
	marker string
}{
	{models.OriginalTagged, OriginalMarker},
	{models.ProcessedTagged, ProcessedMarker},
	{models.Temporary, TempMarker},
}

// Marker returns the marker text for a tag state, or "" for Untouched.
func Marker(state models.TagState) string {
	for _, m := range markers {
		if m.state == state {
			return m.marker
		}
	}
	return ""
}

// Decode reads the tag state from the base name of path.
func Decode(path string) models.TagState {
	name := filepath.Base(path)
	for _, m := range markers {
		if strings.Contains(name, m.marker) {
			return m.state
		}
	}
	return models.Untouched
}

// IsTagged reports whether path carries any of the markers.
func IsTagged(path string) bool {
	return Decode(path) != models.Untouched
}

// Tagged builds "dir/Name<marker>.ext" for an untagged "dir/Name.ext".
func Tagged(path string, state models.TagState) (string, error) {
	if IsTagged(path) {
		return "", fmt.Errorf("path %q is already tagged", path)
	}
	marker := Marker(state)
	if marker == "" {
		return "", fmt.Errorf("no marker for tag state %s", state)
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return stem + marker + ext, nil
}

// Untagged reverses Tagged for a path whose stem ends in exactly one marker.
// The second result is false when path does not have that shape.
func Untagged(path string) (string, models.TagState, bool) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for _, m := range markers {
		if strings.HasSuffix(stem, m.marker) {
			return strings.TrimSuffix(stem, m.marker) + ext, m.state, true
		}
	}
	return "", models.Untouched, false
}

// UniquePath returns path if nothing exists there, otherwise the first free
// "Name (n).ext" variant.
func UniquePath(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// Variants lists the existing files UniquePath would have skipped over for
// path: path itself and every "Name (n).ext" beside it.
func Variants(path string) ([]string, error) {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := filepath.Base(path)
	prefix := strings.TrimSuffix(base, ext) + " ("
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var found []string
	for _, e := range entries {
		name := e.Name()
		if name == base {
			found = append(found, path)
			continue
		}
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ")"+ext) {
			continue
		}
		n := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ")"+ext)
		if i, err := strconv.Atoi(n); err == nil && i > 0 && strconv.Itoa(i) == n {
			found = append(found, filepath.Join(dir, name))
		}
	}
	return found, nil
}

// Paths groups every on-disk name a logical document can take.
type Paths struct {
	Source    string
	Temp      string
	Original  string
	Processed string
}

// PlanPaths computes the temp and final names for an untagged source. The
// original and processed names skip over existing files so a commit never
// overwrites anything.
func PlanPaths(source string) (Paths, error) {
	tmp, err := Tagged(source, models.Temporary)
	if err != nil {
		return Paths{}, err
	}
	orig, err := Tagged(source, models.OriginalTagged)
	if err != nil {
		return Paths{}, err
	}
	processed, err := Tagged(source, models.ProcessedTagged)
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		Source:    source,
		Temp:      tmp,
		Original:  UniquePath(orig),
		Processed: UniquePath(processed),
	}, nil
}
