package pdf

import (
	"bytes"
	"context"
	"fmt"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

// Inspector rejects uploads that claim to be PDFs but cannot be parsed.
type Inspector struct {
	maxPages int
}

func NewInspector(maxPages int) *Inspector {
	return &Inspector{maxPages: maxPages}
}

func (i *Inspector) Inspect(_ context.Context, upload domain.Upload) error {
	if !upload.IsPDF() {
		return nil
	}
	pages, err := countPages(upload.Data)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "inspect pdf "+upload.Filename, err)
	}
	if pages == 0 {
		return domain.Errorf(domain.ErrInvalidInput, "inspect pdf "+upload.Filename, "document has no pages")
	}
	if i.maxPages > 0 && pages > i.maxPages {
		return domain.Errorf(domain.ErrInvalidInput, "inspect pdf "+upload.Filename, "document has %d pages, limit is %d", pages, i.maxPages)
	}
	return nil
}

// countPages recovers from parser panics on malformed input.
func countPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	return reader.NumPage(), nil
}
