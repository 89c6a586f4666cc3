package entity

import (
	"sort"
	"time"

	"github.com/tade-balogun/policy-engine/constants"
)

// PageRecord is one page's extraction outcome inside a manifest.
type PageRecord struct {
	PageNumber int                  `json:"pageNumber"`
	Status     constants.PageStatus `json:"status"`
	TextPath   string               `json:"textPath,omitempty"`
	OCRUsed    bool                 `json:"ocrUsed,omitempty"`
	LineCount  int                  `json:"lineCount,omitempty"`
	Error      string               `json:"error,omitempty"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

// Manifest is the durable per-document checkpoint, independent of any
// single job. Its file hash always reflects the most recently successfully
// started processing attempt.
type Manifest struct {
	TenantID   string                   `json:"tenantId"`
	DocumentID string                   `json:"documentId"`
	Filename   string                   `json:"filename"`
	FileHash   string                   `json:"fileHash"`
	Pages      []PageRecord             `json:"pages"`
	Fragments  int                      `json:"fragments"`
	Status     constants.ManifestStatus `json:"status"`
	CreatedAt  time.Time                `json:"createdAt"`
	UpdatedAt  time.Time                `json:"updatedAt"`
}

// NewManifest starts a fresh checkpoint for one document + content hash.
func NewManifest(tenantID, documentID, filename, fileHash string) *Manifest {
	now := time.Now().UTC()
	return &Manifest{
		TenantID:   tenantID,
		DocumentID: documentID,
		Filename:   filename,
		FileHash:   fileHash,
		Pages:      []PageRecord{},
		Status:     constants.ManifestInitializing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Page returns the record for a page number, or nil.
func (m *Manifest) Page(pageNumber int) *PageRecord {
	for i := range m.Pages {
		if m.Pages[i].PageNumber == pageNumber {
			return &m.Pages[i]
		}
	}
	return nil
}

// UpdatePage records a page outcome, inserting or replacing in page order.
func (m *Manifest) UpdatePage(pageNumber int, status constants.PageStatus, textPath string, ocrUsed bool, lineCount int, errMsg string) {
	now := time.Now().UTC()
	rec := m.Page(pageNumber)
	if rec == nil {
		m.Pages = append(m.Pages, PageRecord{PageNumber: pageNumber})
		sort.Slice(m.Pages, func(i, j int) bool { return m.Pages[i].PageNumber < m.Pages[j].PageNumber })
		rec = m.Page(pageNumber)
	}
	rec.Status = status
	rec.UpdatedAt = now
	if textPath != "" {
		rec.TextPath = textPath
	}
	if ocrUsed {
		rec.OCRUsed = true
	}
	if lineCount > 0 {
		rec.LineCount = lineCount
	}
	rec.Error = errMsg
	m.UpdatedAt = now
}

// ShouldSkipPage reports whether a page is already COMPLETED for the given
// content hash. This is the resumability contract: a completed page for an
// unchanged file is never re-extracted.
func (m *Manifest) ShouldSkipPage(pageNumber int, currentHash string) bool {
	if m.FileHash != currentHash {
		return false
	}
	rec := m.Page(pageNumber)
	return rec != nil && rec.Status == constants.PageCompleted
}

// AllPagesCompleted reports whether every recorded page is COMPLETED and at
// least one page was recorded.
func (m *Manifest) AllPagesCompleted() bool {
	if len(m.Pages) == 0 {
		return false
	}
	for i := range m.Pages {
		if m.Pages[i].Status != constants.PageCompleted {
			return false
		}
	}
	return true
}

// FailedPages returns the page records in FAILED state.
func (m *Manifest) FailedPages() []PageRecord {
	var out []PageRecord
	for _, p := range m.Pages {
		if p.Status == constants.PageFailed {
			out = append(out, p)
		}
	}
	return out
}

// SetStatus updates the overall manifest status.
func (m *Manifest) SetStatus(status constants.ManifestStatus) {
	m.Status = status
	m.UpdatedAt = time.Now().UTC()
}

// SetFragments records the cumulative indexed-fragment count.
func (m *Manifest) SetFragments(n int) {
	m.Fragments = n
	m.UpdatedAt = time.Now().UTC()
}
