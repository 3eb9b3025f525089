package ingestion_engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/models"
)

type formatExtractor interface {
	Extract(ctx context.Context, data []byte) (*core.ExtractedDocument, error)
}

// Extractor dispatches raw file bytes to the extractor for the declared format.
type Extractor struct {
	formats map[string]formatExtractor
	log     *zap.Logger
}

var _ core.DocumentExtractor = (*Extractor)(nil)

// NewExtractor wires the PDF, Word and PowerPoint extractors. ocr may be nil
// to disable the scanned-PDF fallback.
func NewExtractor(ocr core.OCREngine, log *zap.Logger) *Extractor {
	log = log.Named("extractor")
	return &Extractor{
		formats: map[string]formatExtractor{
			models.FileTypePDF:  NewPDFExtractor(ocr, log),
			models.FileTypeDOCX: NewDocxExtractor(),
			models.FileTypePPTX: NewPptxExtractor(log),
		},
		log: log,
	}
}

// Extract returns an ErrExtractionEmpty error naming the file when the
// document yields no text. Reader failures are reported the same way since a
// corrupt file will not parse on a retry either.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileType, fileName string) (*core.ExtractedDocument, error) {
	fx, ok := e.formats[fileType]
	if !ok {
		return nil, core.Validation(fmt.Sprintf("unsupported file type %q", fileType))
	}

	doc, err := fx.Extract(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn("extraction failed",
			zap.String("file_name", fileName), zap.String("file_type", fileType), zap.Error(err))
		return nil, extractionEmpty(fileName, fileType, err)
	}

	if strings.TrimSpace(doc.Text) == "" {
		return nil, extractionEmpty(fileName, fileType, nil)
	}
	if doc.PageCount < 1 {
		doc.PageCount = 1
	}
	return doc, nil
}

func extractionEmpty(fileName, fileType string, cause error) error {
	msg := fmt.Sprintf("Could not extract text from \"%s\". The %s may be empty or corrupted.",
		fileName, models.FormatLabel(fileType))
	return core.NewError(core.ErrExtractionEmpty, msg, cause)
}
