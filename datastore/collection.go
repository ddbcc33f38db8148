package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// collection is an ordered list of documents mirrored to a single JSON file.
type collection struct {
	file         string
	docs         []Document
	lastChecksum string
}

func loadCollection(file string) (*collection, error) {
	c := &collection{file: file}

	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(data, &c.docs); err != nil {
		return nil, fmt.Errorf("invalid JSON format in %s: %w", file, err)
	}
	c.lastChecksum = checksum(data)
	return c, nil
}

// save writes the collection when its content changed since the last save.
func (c *collection) save() error {
	docs := c.docs
	if docs == nil {
		docs = []Document{}
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	sum := checksum(data)
	if sum == c.lastChecksum {
		return nil
	}

	if err := writeFileAtomic(c.file, data); err != nil {
		return err
	}
	c.lastChecksum = sum
	return nil
}

// writeFileAtomic performs atomic file write using temporary file and rename
func writeFileAtomic(file string, data []byte) error {
	tmpFile := file + ".tmp"

	f, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	f.Close()

	if err := os.Rename(tmpFile, file); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
