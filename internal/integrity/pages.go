package integrity

import (
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCounter reports how many pages a verified artifact contains. The session
// service uses it to cross-check the issued totalPages.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// PDFPageCounter reads the page tree with pdfcpu.
type PDFPageCounter struct{}

func (PDFPageCounter) PageCount(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	pdf, err := api.ReadContextFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pdf context: %w", err)
	}
	return pdf.PageCount, nil
}
