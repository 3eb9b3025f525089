//go:build !ocr

package ingestion_engine

import (
	"context"
	"errors"

	"github.com/markdave123-py/documind/internal/core"
)

// OCRAvailable reports whether the binary was built with tesseract support.
// Build with -tags ocr to link gosseract.
const OCRAvailable = false

var errOCRNotBuilt = errors.New("ocr support not built in (rebuild with -tags ocr)")

type TesseractOCR struct{}

var _ core.OCREngine = (*TesseractOCR)(nil)

func NewTesseractOCR(...string) *TesseractOCR {
	return &TesseractOCR{}
}

func (*TesseractOCR) Recognize(context.Context, []byte) (string, error) {
	return "", errOCRNotBuilt
}
