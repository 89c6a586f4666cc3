package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/tade-balogun/policy-engine/internal/common"
	"github.com/tade-balogun/policy-engine/internal/ocr"
)

// PageText is one page of native extraction output. A page whose embedded
// text layer is too thin to trust carries NeedsOCR=true and empty Text.
type PageText struct {
	Number   int
	Text     string
	NeedsOCR bool
}

// Extractor pulls the embedded text layer out of a PDF with pdftotext and
// decides per page whether OCR is still required.
type Extractor struct {
	runner ocr.Runner
	cfg    common.OCRConfig
	logger *slog.Logger
}

func NewExtractor(runner ocr.Runner, cfg common.OCRConfig, logger *slog.Logger) *Extractor {
	return &Extractor{runner: runner, cfg: cfg, logger: logger}
}

// PageCount determines the page count via pdfinfo, falling back to parsing
// the document directly when the binary is missing or fails.
func (e *Extractor) PageCount(ctx context.Context, path string) (int, error) {
	out, _, err := e.runner.Run(ctx, e.cfg.Pdfinfo, path)
	if err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			if !strings.HasPrefix(line, "Pages:") {
				continue
			}
			n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
			if convErr == nil && n > 0 {
				return n, nil
			}
		}
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("page count for %s: %w", path, err)
	}
	return n, nil
}

// ExtractPages runs native extraction over the whole document. When
// pdftotext fails outright the document is treated as fully scanned and
// every page is marked NeedsOCR, as long as the page count is determinable.
func (e *Extractor) ExtractPages(ctx context.Context, path string) ([]PageText, error) {
	pageCount, err := e.PageCount(ctx, path)
	if err != nil {
		return nil, common.WrapError(err, "cannot determine page count")
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		e.logger.Warn("native extraction failed, treating all pages as scanned",
			"path", path, "pages", pageCount, "stderr", string(errb))
		pages := make([]PageText, pageCount)
		for i := range pages {
			pages[i] = PageText{Number: i + 1, NeedsOCR: true}
		}
		return pages, nil
	}

	parts := strings.Split(string(out), "\f")
	// pdftotext emits a trailing form feed after the last page
	if len(parts) == pageCount+1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	for len(parts) < pageCount {
		parts = append(parts, "")
	}
	if len(parts) > pageCount {
		parts = parts[:pageCount]
	}

	pages := make([]PageText, pageCount)
	for i, text := range parts {
		if len(strings.TrimSpace(text)) >= e.cfg.NeedsOCRThreshold {
			pages[i] = PageText{Number: i + 1, Text: text}
		} else {
			pages[i] = PageText{Number: i + 1, NeedsOCR: true}
		}
	}
	return pages, nil
}
