package ingestion_engine

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
)

var slideFilePattern = regexp.MustCompile(`(?i)^ppt/slides/slide(\d+)\.xml$`)

const drawingMLNamespace = "http://schemas.openxmlformats.org/drawingml/2006/main"

// maxSlideXMLBytes bounds how much of a single slide part is read.
const maxSlideXMLBytes = 16 << 20

// PptxExtractor reads the text runs of every slide in a presentation. A slide
// whose markup is broken keeps the runs read before the fault.
type PptxExtractor struct {
	log *zap.Logger
}

func NewPptxExtractor(log *zap.Logger) *PptxExtractor {
	return &PptxExtractor{log: log.Named("pptx")}
}

type slideFile struct {
	num  int
	file *zip.File
}

// Extract returns one SlideText per slide that has text, numbered by the
// slide's position in numeric file order. PageCount is the number of slide
// parts in the archive.
func (e *PptxExtractor) Extract(ctx context.Context, data []byte) (*core.ExtractedDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pptx archive: %w", err)
	}

	files := sortedSlideFiles(zr.File)
	if len(files) == 0 {
		return nil, errors.New("pptx has no slides")
	}

	var (
		slides []core.SlideText
		parts  []string
	)
	for i, sf := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		runs, err := readSlideRuns(sf.file)
		if err != nil {
			e.log.Warn("skipping unreadable slide markup",
				zap.Int("slide", i+1), zap.String("part", sf.file.Name), zap.Int("runs_kept", len(runs)), zap.Error(err))
		}
		if len(runs) == 0 {
			continue
		}

		s := core.SlideText{Number: i + 1, Text: strings.Join(runs, " ")}
		slides = append(slides, s)
		parts = append(parts, SlideHeader(s.Number)+"\n"+s.Text)
	}

	return &core.ExtractedDocument{
		Text:      strings.Join(parts, "\n\n"),
		PageCount: len(files),
		Slides:    slides,
	}, nil
}

// sortedSlideFiles orders slide parts by the number in their name, so slide10
// follows slide9.
func sortedSlideFiles(files []*zip.File) []slideFile {
	var out []slideFile
	for _, f := range files {
		m := slideFilePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, slideFile{num: n, file: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].num < out[j].num })
	return out
}

// readSlideRuns collects the trimmed, non-empty <a:t> text runs of one slide.
// Entities are decoded by the XML tokenizer, which also accepts HTML entities
// and stray ampersands. On a syntax error the runs read so far are returned
// with the error.
func readSlideRuns(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxSlideXMLBytes))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	var (
		runs  []string
		inRun bool
		cur   strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return runs, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if isTextRun(t.Name) {
				inRun = true
				cur.Reset()
			}
		case xml.EndElement:
			if isTextRun(t.Name) {
				inRun = false
				if s := strings.TrimSpace(cur.String()); s != "" {
					runs = append(runs, s)
				}
			}
		case xml.CharData:
			if inRun {
				cur.Write(t)
			}
		}
	}
	return runs, nil
}

func isTextRun(n xml.Name) bool {
	return n.Local == "t" && (n.Space == drawingMLNamespace || n.Space == "a")
}
