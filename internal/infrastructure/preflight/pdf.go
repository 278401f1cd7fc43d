// Package preflight validates uploaded documents locally before any bytes are
// sent to the analysis backend.
package preflight

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/mariankugiel/labintake/internal/core/domain"
)

const (
	// MaxFileSize matches the upload limit enforced by the backend.
	MaxFileSize = 25 << 20

	// textProbeLimit caps how much extracted text is examined. A handful of
	// real characters is enough to rule out a pure image scan.
	textProbeLimit = 4096

	minTextRunes = 32
)

var pdfMagic = []byte("%PDF-")

// Inspector checks that an upload is a readable PDF and probes it for an
// embedded text layer, so callers can pre-select OCR for scanned documents.
type Inspector struct {
	maxSize int
}

func NewInspector() *Inspector {
	return &Inspector{maxSize: MaxFileSize}
}

func (i *Inspector) Inspect(filename string, content []byte) (domain.FileInsight, error) {
	if len(content) == 0 {
		return domain.FileInsight{}, domain.WrapError(domain.ErrInvalidInput, "preflight", fmt.Errorf("empty file"))
	}
	if len(content) > i.maxSize {
		return domain.FileInsight{}, domain.WrapError(domain.ErrInvalidInput, "preflight", fmt.Errorf("file exceeds %d bytes", i.maxSize))
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && ext != ".pdf" {
		return domain.FileInsight{}, domain.WrapError(domain.ErrInvalidInput, "preflight", fmt.Errorf("unsupported file type %s", ext))
	}
	if !bytes.HasPrefix(content, pdfMagic) {
		return domain.FileInsight{}, domain.WrapError(domain.ErrInvalidInput, "preflight", fmt.Errorf("not a PDF file"))
	}

	insight, err := inspectPDF(content)
	if err != nil {
		return domain.FileInsight{}, domain.WrapError(domain.ErrInvalidInput, "preflight", err)
	}
	return insight, nil
}

// inspectPDF recovers from panics: the parser is not hardened against
// malformed user uploads.
func inspectPDF(content []byte) (insight domain.FileInsight, err error) {
	defer func() {
		if r := recover(); r != nil {
			insight = domain.FileInsight{}
			err = fmt.Errorf("corrupt PDF structure: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return domain.FileInsight{}, fmt.Errorf("parse PDF: %w", err)
	}

	insight.PageCount = reader.NumPage()
	if insight.PageCount == 0 {
		return domain.FileInsight{}, fmt.Errorf("PDF has no pages")
	}
	insight.HasText = probeText(reader)
	return insight, nil
}

func probeText(reader *pdf.Reader) bool {
	textReader, err := reader.GetPlainText()
	if err != nil {
		return false
	}

	buf := make([]byte, textProbeLimit)
	n, _ := textReader.Read(buf)
	runes := 0
	for _, r := range string(buf[:n]) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			runes++
			if runes >= minTextRunes {
				return true
			}
		}
	}
	return false
}
