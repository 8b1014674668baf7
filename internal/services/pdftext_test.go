package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Lllllllleong/safeocr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePage(t *testing.T, data []byte, page int) string {
	t.Helper()
	r, err := newTextLayer(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	text, err := pageText(r, page)
	require.NoError(t, err)
	return text
}

func TestPDFOpenerReadsPagesInOrder(t *testing.T) {
	path := writePDF(t, simplePDF("page zero text", "", "page two is here"))

	src, err := NewPDFOpener().Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 3, src.PageCount())
	for i, want := range []string{"page zero text", "", "page two is here"} {
		got, err := src.PageText(i)
		require.NoError(t, err, "page %d", i)
		assert.Equal(t, want, got, "page %d", i)
	}
	_, err = src.PageText(3)
	assert.Error(t, err)
}

func TestClassifyRealDocument(t *testing.T) {
	path := writePDF(t, simplePDF("a page with plenty of text", "", "another page of text"))
	c, err := NewClassifier(NewPDFOpener(), ClassifierConfig{SamplePages: 20, PageMinChars: 10, MinCoverage: 0.5})
	require.NoError(t, err)

	res, err := c.Classify(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PageCount)
	assert.Equal(t, []int{0, 1, 2}, res.SampledPages)
	assert.Equal(t, 2, res.TextyCount)
	assert.Equal(t, models.DecisionSkip, res.Decision)

	c, err = NewClassifier(NewPDFOpener(), ClassifierConfig{SamplePages: 20, PageMinChars: 10, MinCoverage: 0.9})
	require.NoError(t, err)
	res, err = c.Classify(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionNeedsOCR, res.Decision)
}

func TestPDFOpenerRejectsGarbage(t *testing.T) {
	_, err := NewPDFOpener().Open(writePDF(t, []byte("this is not a pdf")))
	assert.Error(t, err)
}

func TestPageTextType0FontCountsCharacters(t *testing.T) {
	var want strings.Builder
	var hex strings.Builder
	for i := 0; i < 100; i++ {
		c := 'A' + rune(i%26)
		want.WriteRune(c)
		fmt.Fprintf(&hex, "%04X", c)
	}
	cmap := `begincmap
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
1 beginbfrange
<0020> <007E> <0020>
endbfrange
endcmap`
	data := singlePagePDF(
		"BT /F1 12 Tf 72 700 Td <"+hex.String()+"> Tj ET",
		"<< /Font << /F1 5 0 R >> >>",
		"<< /Type /Font /Subtype /Type0 /BaseFont /ABCDEF+Arial /Encoding /Identity-H /DescendantFonts [6 0 R] /ToUnicode 7 0 R >>",
		"<< /Type /Font /Subtype /CIDFontType2 /BaseFont /ABCDEF+Arial /CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> /CIDToGIDMap /Identity >>",
		pdfStream("", cmap),
	)

	got := decodePage(t, data, 0)
	assert.Equal(t, want.String(), got)
	assert.Equal(t, 100, utf8.RuneCountInString(got))
}

func TestPageTextType0FontWithoutMappingCountsGlyphs(t *testing.T) {
	data := singlePagePDF(
		"BT /F1 12 Tf 72 700 Td <00410042004300440045> Tj ET",
		"<< /Font << /F1 5 0 R >> >>",
		"<< /Type /Font /Subtype /Type0 /BaseFont /ABCDEF+Arial /Encoding /Identity-H /DescendantFonts [6 0 R] >>",
		"<< /Type /Font /Subtype /CIDFontType2 /BaseFont /ABCDEF+Arial /CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> >>",
	)
	assert.Equal(t, 5, utf8.RuneCountInString(decodePage(t, data, 0)))
}

func TestPageTextFollowsFormXObjects(t *testing.T) {
	data := singlePagePDF(
		"q 1 0 0 1 0 0 cm /OCRFm0 Do Q",
		"<< /XObject << /OCRFm0 5 0 R >> >>",
		pdfStream("/Type /XObject /Subtype /Form /BBox [0 0 612 792] /Resources << /Font << /F1 6 0 R >> >>",
			"BT /F1 12 Tf 72 700 Td (invisible text layer) Tj ET"),
		helvetica,
	)
	assert.Equal(t, "invisible text layer", decodePage(t, data, 0))
}

func TestPageTextKeepsWordGaps(t *testing.T) {
	data := singlePagePDF(
		"BT /F1 12 Tf 72 700 Td [(Hello) -300 (world) -40 (!)] TJ 0 -14 Td (next) Tj (line) ' ET",
		"<< /Font << /F1 5 0 R >> >>",
		helvetica,
	)
	assert.Equal(t, "Hello world!\nnext\nline", decodePage(t, data, 0))
}

func TestPageTextIgnoresImages(t *testing.T) {
	data := singlePagePDF(
		"q 612 0 0 792 0 0 cm /Im0 Do Q",
		"<< /XObject << /Im0 5 0 R >> >>",
		pdfStream("/Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8", "\x00"),
	)
	assert.Empty(t, decodePage(t, data, 0))
}

func TestTextWriterCollapsesSeparators(t *testing.T) {
	var w textWriter
	w.sep('\n')
	w.text("a")
	w.sep(' ')
	w.sep(' ')
	w.text("b")
	w.sep(' ')
	w.sep('\n')
	w.sep(' ')
	w.text("c")
	w.sep('\n')
	assert.Equal(t, "a b\nc", w.String())
}
