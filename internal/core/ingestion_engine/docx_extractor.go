package ingestion_engine

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/documind/internal/core"
)

// DocxExtractor extracts raw text from Word documents with docconv.
type DocxExtractor struct{}

func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{}
}

func (e *DocxExtractor) Extract(ctx context.Context, data []byte) (*core.ExtractedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, _, err := docconv.ConvertDocx(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("convert docx: %w", err)
	}

	return &core.ExtractedDocument{Text: text, PageCount: docxPageCount(data)}, nil
}

// docxPageCount reads <Pages> from docProps/app.xml, the count Word saved
// with the file. It returns 1 when the property is absent.
func docxPageCount(data []byte) int {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 1
	}

	for _, f := range zr.File {
		if f.Name != "docProps/app.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return 1
		}
		defer rc.Close()

		var props struct {
			Pages int `xml:"Pages"`
		}
		if err := xml.NewDecoder(io.LimitReader(rc, 1<<20)).Decode(&props); err != nil || props.Pages <= 0 {
			return 1
		}
		return props.Pages
	}
	return 1
}
