package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// Metadata describes one backed-up file.
type Metadata struct {
	SourcePath string    `json:"source_path"` // Original file path
	BackupPath string    `json:"backup_path"` // Path of the backup copy
	CreatedAt  time.Time `json:"created_at"`  // Backup creation timestamp
	ModifiedAt time.Time `json:"modified_at"` // Source modification timestamp
	Hash       string    `json:"hash"`        // SHA256 hash of content
	Size       int64     `json:"size"`        // File size in bytes
}

// Verify checks that the backup copy is intact and matches its hash.
func (m Metadata) Verify() error {
	hashStr, err := hashFile(m.BackupPath)
	if err != nil {
		return err
	}
	if hashStr != m.Hash {
		return fmt.Errorf("backup file corrupted: hash mismatch (expected %s, got %s)", m.Hash, hashStr)
	}
	return nil
}

// hashFile returns the hex SHA256 of the file at path.
func hashFile(path string) (string, error) {
	// #nosec G304 - path is a backup created by this package or a caller-registered asset file
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
