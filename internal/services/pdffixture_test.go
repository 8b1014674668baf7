package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// pdfFixture assembles a small uncompressed PDF with a correct xref table.
// Objects are numbered from 1 in the order they are added.
type pdfFixture struct {
	objs []string
}

func (b *pdfFixture) add(obj string) int {
	b.objs = append(b.objs, obj)
	return len(b.objs)
}

func (b *pdfFixture) set(n int, obj string) {
	b.objs[n-1] = obj
}

func (b *pdfFixture) bytes(root int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(b.objs))
	for i, obj := range b.objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(b.objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objs)+1, root, xref)
	return buf.Bytes()
}

func pdfStream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

const helvetica = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"

// simplePDF builds one Helvetica page per entry; an empty entry is a page
// without content.
func simplePDF(pageTexts ...string) []byte {
	b := &pdfFixture{}
	catalog := b.add("<< /Type /Catalog /Pages 2 0 R >>")
	pages := b.add("")
	font := b.add(helvetica)
	var kids []string
	for _, text := range pageTexts {
		page := fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >>", pages, font)
		if text != "" {
			content := b.add(pdfStream("", "BT /F1 12 Tf 72 700 Td ("+text+") Tj ET"))
			page += fmt.Sprintf(" /Contents %d 0 R", content)
		}
		kids = append(kids, fmt.Sprintf("%d 0 R", b.add(page+" >>")))
	}
	b.set(pages, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids)))
	return b.bytes(catalog)
}

// singlePagePDF builds a one-page document from a content stream, page
// resources and any extra objects, which are numbered from 5.
func singlePagePDF(content, resources string, extra ...string) []byte {
	b := &pdfFixture{}
	b.add("<< /Type /Catalog /Pages 2 0 R >>")
	b.add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources " + resources + " /Contents 4 0 R >>")
	b.add(pdfStream("", content))
	for _, obj := range extra {
		b.add(obj)
	}
	return b.bytes(1)
}

func writePDF(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
