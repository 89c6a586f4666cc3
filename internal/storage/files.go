package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore lays documents out on disk as
// dataDir/<tenant>/<document>/<filename>, with extracted page text under a
// text/ subdirectory next to the source file.
type FileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) *FileStore {
	return &FileStore{dataDir: dataDir}
}

// HashBytes returns the SHA-256 content hash used for change detection.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashFile hashes a file already on disk.
func HashFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return HashBytes(content), nil
}

func (s *FileStore) documentDir(tenantID, documentID string) string {
	return filepath.Join(s.dataDir, tenantID, documentID)
}

// SourcePath returns where the uploaded file lives for a document.
func (s *FileStore) SourcePath(tenantID, documentID, filename string) string {
	return filepath.Join(s.documentDir(tenantID, documentID), filename)
}

// SaveUpload persists uploaded bytes and returns the stored path.
func (s *FileStore) SaveUpload(tenantID, documentID, filename string, content []byte) (string, error) {
	dir := s.documentDir(tenantID, documentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

// DeleteDocument removes the source file and all derived page text.
func (s *FileStore) DeleteDocument(tenantID, documentID string) error {
	return os.RemoveAll(s.documentDir(tenantID, documentID))
}

// TextDir is where per-page extracted text is persisted.
func (s *FileStore) TextDir(tenantID, documentID string) string {
	return filepath.Join(s.documentDir(tenantID, documentID), "text")
}
