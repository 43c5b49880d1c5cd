package localpdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/Whisker2257/casa/internal/core/domain"
)

// Converter is the offline fallback used when no OCR credentials are
// configured: PDF bytes are reduced to plain text, anything else is
// treated as UTF-8 already.
type Converter struct{}

func New() *Converter {
	return &Converter{}
}

var pdfMagic = []byte("%PDF-")

func (c *Converter) Convert(_ context.Context, data []byte) (string, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return string(data), nil
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "parse pdf", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "extract pdf text", err)
	}

	var out bytes.Buffer
	if _, err := io.Copy(&out, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return out.String(), nil
}
