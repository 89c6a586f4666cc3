package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var pageFilePattern = regexp.MustCompile(`^page_(\d+)\.txt$`)

// PageTextStore persists extracted page text as text/page_N.txt files so a
// resumed or reprocessed run can rebuild fragments without re-running OCR.
type PageTextStore struct {
	files *FileStore
}

func NewPageTextStore(files *FileStore) *PageTextStore {
	return &PageTextStore{files: files}
}

func (s *PageTextStore) pagePath(tenantID, documentID string, page int) string {
	return filepath.Join(s.files.TextDir(tenantID, documentID), fmt.Sprintf("page_%d.txt", page))
}

// WritePage stores one page's text and returns the path it was written to.
func (s *PageTextStore) WritePage(tenantID, documentID string, page int, text string) (string, error) {
	dir := s.files.TextDir(tenantID, documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create text dir: %w", err)
	}
	path := s.pagePath(tenantID, documentID, page)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write page %d: %w", page, err)
	}
	return path, nil
}

// ReadPage loads one page's persisted text.
func (s *PageTextStore) ReadPage(tenantID, documentID string, page int) (string, error) {
	content, err := os.ReadFile(s.pagePath(tenantID, documentID, page))
	if err != nil {
		return "", fmt.Errorf("read page %d: %w", page, err)
	}
	return string(content), nil
}

// ListPages returns the page numbers with persisted text, ascending.
func (s *PageTextStore) ListPages(tenantID, documentID string) ([]int, error) {
	entries, err := os.ReadDir(s.files.TextDir(tenantID, documentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list pages: %w", err)
	}
	var pages []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pageFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages, nil
}
