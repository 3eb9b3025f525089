package core

import (
	"context"
)

// SlideText is the extracted text of one presentation slide.
type SlideText struct {
	Number int
	Text   string
}

// ExtractedDocument represents the result of text extraction.
//
// Text:      full extracted text, unsanitized.
// PageCount: pages or slides, at least 1.
// Slides:    per-slide text for presentations, nil otherwise.
type ExtractedDocument struct {
	Text      string
	PageCount int
	Slides    []SlideText
}

// DocumentExtractor turns raw file bytes into text for a declared format.
// It returns an ErrExtractionEmpty error when no usable text exists.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, fileType, fileName string) (*ExtractedDocument, error)
}

// OCREngine recognises text in a single image.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}
