package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTool installs an executable shell script that stands in for the OCR
// tool. The script sees the input as $in and the output as $out.
func writeTool(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-ocrmypdf")
	script := "#!/bin/sh\n" +
		"in=''; out=''\n" +
		"for a in \"$@\"; do in=\"$out\"; out=\"$a\"; done\n" +
		body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const (
	toolSucceeds     = `printf '%%PDF-1.7 ocr of %s' "$in" > "$out"; exit 0`
	toolFails        = `echo "page 3: tesseract crashed" >&2; exit 2`
	toolEmptyOutput  = `: > "$out"; exit 0`
	toolNoOutput     = `exit 0`
	toolPartialFails = `echo partial > "$out"; echo "killed" >&2; exit 1`
)

// toolFailsFirst fails the first call per input and succeeds afterwards,
// keeping its call counters in stateDir.
func toolFailsFirst(stateDir string) string {
	return `cnt="` + stateDir + `/$(basename "$in").count"
n=$(cat "$cnt" 2>/dev/null || echo 0); n=$((n+1)); echo $n > "$cnt"
echo "$@" >> "` + stateDir + `/calls.log"
if [ "$n" -eq 1 ]; then echo "first attempt failed" >&2; echo junk > "$out"; exit 4; fi
printf 'ocr output' > "$out"; exit 0`
}
