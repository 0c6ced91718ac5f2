package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFService pulls plain text out of uploaded PDF note pages so they can go
// through the text extraction path.
type PDFService struct{}

func NewPDFService() *PDFService {
	return &PDFService{}
}

// ExtractPageTexts returns one text blob per PDF page, skipping pages with
// no extractable text.
func (s *PDFService) ExtractPageTexts(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	var texts []string
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", pageNum, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		texts = append(texts, text)
	}

	if len(texts) == 0 {
		return nil, fmt.Errorf("pdf contains no extractable text")
	}
	return texts, nil
}
