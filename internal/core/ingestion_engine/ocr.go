//go:build ocr

package ingestion_engine

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/markdave123-py/documind/internal/core"
)

// OCRAvailable reports whether the binary was built with tesseract support.
const OCRAvailable = true

// TesseractOCR recognises text with a local tesseract install. A fresh
// gosseract client is used per image because clients are not goroutine safe.
type TesseractOCR struct {
	languages []string
}

var _ core.OCREngine = (*TesseractOCR)(nil)

func NewTesseractOCR(languages ...string) *TesseractOCR {
	return &TesseractOCR{languages: languages}
}

func (t *TesseractOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(t.languages) > 0 {
		if err := client.SetLanguage(t.languages...); err != nil {
			return "", fmt.Errorf("ocr set language: %w", err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("ocr load image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr recognise: %w", err)
	}
	return text, nil
}
