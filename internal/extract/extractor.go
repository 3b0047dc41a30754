// Package extract converts uploaded files into plain text. It is a pure
// transform: no persistence, no network. Empty output is not an error
// here; the pipeline decides what an empty document means.
package extract

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNotFound        = errors.New("file not found")
)

// SupportedTypes is the fixed extension set accepted at upload time.
var SupportedTypes = map[string]bool{
	"txt":  true,
	"pdf":  true,
	"docx": true,
	"doc":  true,
}

type Extractor struct {
	// CJKRatioMin drives the PDF page filter: pages whose ratio of CJK
	// characters to non-whitespace characters is at or below this value
	// are treated as garbled (broken font encoding) and dropped. This is
	// a lossy heuristic tuned for mixed-language corpora; set to a
	// negative value to keep every page.
	CJKRatioMin float64
}

func New(cjkRatioMin float64) *Extractor {
	return &Extractor{CJKRatioMin: cjkRatioMin}
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path, fileType string) (string, error) {
	fileType = strings.ToLower(fileType)
	if !SupportedTypes[fileType] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	switch fileType {
	case "txt":
		return extractText(path)
	case "pdf":
		return e.extractPDF(path)
	default: // docx, doc
		return extractDocx(path)
	}
}

func extractText(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a server-generated upload location
	if err != nil {
		return "", err
	}
	// Replace invalid byte sequences instead of failing; uploads are
	// declared UTF-8 but not always honest about it.
	return strings.ToValidUTF8(string(data), ""), nil
}

func (e *Extractor) extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}

		if CJKRatio(pageText) > e.CJKRatioMin {
			parts = append(parts, pageText)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// CJKRatio returns the proportion of CJK ideographs among the
// non-whitespace characters of s.
func CJKRatio(s string) float64 {
	var cjk, total int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(cjk) / float64(total)
}

// docx files are zip archives; the body lives in word/document.xml.
// Paragraph text is collected first, then table-cell text, matching the
// reading order users expect from office documents.
func extractDocx(path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		text, err := parseDocumentXML(rc)
		rc.Close()
		return text, err
	}

	return "", nil
}
