package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/documind/internal/core"
)

// minPDFTextChars is the structural text length under which a PDF is treated
// as scanned and sent through OCR.
const minPDFTextChars = 50

// PDFExtractor reads the text layer of a PDF and falls back to OCR over the
// embedded page images when the text layer is missing.
//
// ocr:         nil disables the OCR fallback.
// concurrency: page images recognised in parallel.
// pageImages:  image source for OCR, pdfcpu by default.
type PDFExtractor struct {
	ocr         core.OCREngine
	concurrency int
	pageImages  func(data []byte) ([][]byte, error)
	log         *zap.Logger
}

func NewPDFExtractor(ocr core.OCREngine, log *zap.Logger) *PDFExtractor {
	return &PDFExtractor{
		ocr:         ocr,
		concurrency: 4,
		pageImages:  extractPageImages,
		log:         log.Named("pdf"),
	}
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (*core.ExtractedDocument, error) {
	text, numPages, err := pdfPlainText(data)
	if err != nil {
		e.log.Debug("structural text extraction failed", zap.Error(err))
	}

	pageCount := pdfPageCount(data)
	if pageCount == 0 {
		pageCount = max(numPages, 1)
	}

	if len(strings.TrimSpace(text)) >= minPDFTextChars {
		return &core.ExtractedDocument{Text: text, PageCount: pageCount}, nil
	}

	// A text layer this short is treated as a scan. Only OCR output is kept;
	// without it the document counts as empty.
	if e.ocr == nil {
		e.log.Info("pdf text layer too short and ocr disabled",
			zap.Int("chars", len(strings.TrimSpace(text))))
		return &core.ExtractedDocument{PageCount: pageCount}, nil
	}

	e.log.Info("pdf text layer too short, running ocr",
		zap.Int("chars", len(strings.TrimSpace(text))), zap.Int("pages", pageCount))

	ocrText, err := e.recognize(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn("ocr fallback failed", zap.Error(err))
		ocrText = ""
	}
	return &core.ExtractedDocument{Text: ocrText, PageCount: pageCount}, nil
}

// recognize runs OCR over every page image and joins the results in page order.
func (e *PDFExtractor) recognize(ctx context.Context, data []byte) (string, error) {
	images, err := e.pageImages(data)
	if err != nil {
		return "", fmt.Errorf("extract page images: %w", err)
	}
	if len(images) == 0 {
		return "", nil
	}

	results := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, img := range images {
		g.Go(func() error {
			text, err := e.ocr.Recognize(gctx, img)
			if err != nil {
				return fmt.Errorf("page image %d: %w", i, err)
			}
			results[i] = strings.TrimSpace(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	parts := results[:0]
	for _, r := range results {
		if r != "" {
			parts = append(parts, r)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// pdfPlainText returns the text layer page by page. Pages that fail to parse
// are skipped.
func pdfPlainText(data []byte) (text string, numPages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	numPages = r.NumPage()
	fonts := make(map[string]*pdf.Font)
	var b strings.Builder
	for i := 1; i <= numPages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		pageText, perr := p.GetPlainText(fonts)
		if perr != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), numPages, nil
}

// pdfPageCount returns 0 when pdfcpu cannot read the file.
func pdfPageCount(data []byte) int {
	n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0
	}
	return n
}

// extractPageImages pulls raw embedded images out of every page, ordered by
// page and then by object number.
func extractPageImages(data []byte) ([][]byte, error) {
	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, model.NewDefaultConfiguration())
	if err != nil {
		return nil, err
	}

	var out [][]byte
	for _, page := range pages {
		objNrs := make([]int, 0, len(page))
		for nr := range page {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)

		for _, nr := range objNrs {
			img := page[nr]
			if img.Reader == nil {
				continue
			}
			b, err := io.ReadAll(img)
			if err != nil {
				return nil, fmt.Errorf("read image %d on page %d: %w", nr, img.PageNr, err)
			}
			if len(b) > 0 {
				out = append(out, b)
			}
		}
	}
	return out, nil
}
