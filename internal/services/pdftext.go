package services

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageTextSource exposes the embedded text of an opened document.
// Pages are addressed from 0.
type PageTextSource interface {
	PageCount() int
	PageText(page int) (string, error)
	Close() error
}

// DocumentOpener opens a document for text sampling.
type DocumentOpener interface {
	Open(path string) (PageTextSource, error)
}

// PDFOpener validates documents with pdfcpu in relaxed mode, so slightly
// malformed files still count as readable, and decodes their text layer
// through each page's fonts.
type PDFOpener struct {
	conf *model.Configuration
}

func NewPDFOpener() *PDFOpener {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return &PDFOpener{conf: cfg}
}

func (o *PDFOpener) Open(path string) (_ PageTextSource, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// pdfcpu can panic on malformed input.
	defer func() {
		if r := recover(); r != nil {
			f.Close()
			err = fmt.Errorf("failed to parse %s: pdfcpu panic: %v", path, r)
		}
	}()
	ctx, err := api.ReadAndValidate(f, o.conf)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	doc := &pdfDocument{file: f, pages: ctx.PageCount}
	doc.text, doc.textErr = newTextLayer(f, info.Size())
	if doc.textErr != nil {
		// Structure is fine but the text layer is not; every page then counts
		// as empty and the document goes to OCR.
		slog.Warn("Failed to read text layer.", "path", path, "error", doc.textErr)
	}
	return doc, nil
}

type pdfDocument struct {
	file    *os.File
	pages   int
	text    *pdf.Reader
	textErr error
}

func (d *pdfDocument) PageCount() int { return d.pages }

func (d *pdfDocument) PageText(page int) (string, error) {
	if d.text == nil {
		return "", fmt.Errorf("text layer unavailable: %w", d.textErr)
	}
	return pageText(d.text, page)
}

func (d *pdfDocument) Close() error { return d.file.Close() }

// newTextLayer opens the decoding reader over the same bytes pdfcpu
// validated.
func newTextLayer(r io.ReaderAt, size int64) (_ *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("text reader panic: %v", rec)
		}
	}()
	return pdf.NewReader(r, size)
}

// pageText returns the decoded text of the 0-based page, including text
// drawn by Form XObjects.
func pageText(r *pdf.Reader, page int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("failed to decode page %d: %v", page+1, rec)
		}
	}()
	if page < 0 || page >= r.NumPage() {
		return "", fmt.Errorf("page %d out of range (%d pages)", page+1, r.NumPage())
	}
	p := r.Page(page + 1)
	if p.V.IsNull() {
		return "", fmt.Errorf("page %d not found", page+1)
	}
	ex := &textExtractor{}
	ex.run(p.V.Key("Contents"), p.Resources(), &textState{})
	return ex.out.String(), nil
}

const (
	// Forms nested deeper than this are ignored.
	maxFormDepth = 8
	// A TJ adjustment at least this far left (thousandths of an em) is a
	// word gap rather than kerning.
	wordGap = 200.0
)

// textState is the part of the graphics state that affects decoding.
type textState struct {
	decode func(raw string) string
}

func (s *textState) show(out *textWriter, raw string) {
	if s.decode == nil {
		out.text(raw)
		return
	}
	out.text(s.decode(raw))
}

type textExtractor struct {
	out   textWriter
	depth int
}

// run interprets a content stream, or an array of them, against resources.
func (e *textExtractor) run(content, resources pdf.Value, st *textState) {
	switch content.Kind() {
	case pdf.Array:
		for i := 0; i < content.Len(); i++ {
			e.run(content.Index(i), resources, st)
		}
		return
	case pdf.Stream:
	default:
		return
	}

	pdf.Interpret(content, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		switch op {
		case "Tf":
			if n >= 1 {
				st.decode = fontDecoder(resources.Key("Font").Key(args[0].Name()))
			}
		case "Tj":
			if n >= 1 {
				st.show(&e.out, args[0].RawString())
			}
		case "'", "\"":
			e.out.sep('\n')
			if n >= 1 {
				st.show(&e.out, args[n-1].RawString())
			}
		case "TJ":
			if n < 1 {
				return
			}
			arr := args[0]
			for i := 0; i < arr.Len(); i++ {
				x := arr.Index(i)
				switch x.Kind() {
				case pdf.String:
					st.show(&e.out, x.RawString())
				case pdf.Integer, pdf.Real:
					if x.Float64() <= -wordGap {
						e.out.sep(' ')
					}
				}
			}
		case "Td", "TD":
			if n == 2 && args[1].Float64() != 0 {
				e.out.sep('\n')
			} else {
				e.out.sep(' ')
			}
		case "T*", "Tm", "ET":
			e.out.sep('\n')
		case "Do":
			if n == 1 {
				e.form(resources, args[0].Name())
			}
		}
	})
}

func (e *textExtractor) form(resources pdf.Value, name string) {
	xo := resources.Key("XObject").Key(name)
	if xo.Kind() != pdf.Stream || xo.Key("Subtype").Name() != "Form" || e.depth >= maxFormDepth {
		return
	}
	res := xo.Key("Resources")
	if res.Kind() != pdf.Dict {
		res = resources
	}
	e.depth++
	e.run(xo, res, &textState{})
	e.depth--
	e.out.sep('\n')
}

// fontDecoder maps a font's character codes to Unicode through its
// ToUnicode CMap or simple encoding.
func fontDecoder(font pdf.Value) func(string) string {
	if font.Kind() != pdf.Dict {
		return nil
	}
	if font.Key("Subtype").Name() == "Type0" && font.Key("ToUnicode").Kind() != pdf.Stream {
		// Identity-H codes are two bytes per glyph; with no mapping only the
		// glyph count is known.
		return func(raw string) string {
			return strings.Repeat("\uFFFD", len(raw)/2)
		}
	}
	f := pdf.Font{V: font}
	return f.Encoder().Decode
}

// textWriter collects decoded text. Separators are buffered and collapsed so
// positioning operators never produce runs of whitespace.
type textWriter struct {
	b       strings.Builder
	pending rune
}

func (w *textWriter) text(s string) {
	if s == "" {
		return
	}
	if w.pending != 0 && w.b.Len() > 0 {
		w.b.WriteRune(w.pending)
	}
	w.pending = 0
	w.b.WriteString(s)
}

func (w *textWriter) sep(r rune) {
	if r == '\n' || w.pending == 0 {
		w.pending = r
	}
}

func (w *textWriter) String() string { return w.b.String() }
