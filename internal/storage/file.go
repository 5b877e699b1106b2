package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// File stores the record as a JSON .cwt file.
// Writes go to a temp file in the same directory and are renamed into place.
type File struct {
	path string
}

// OpenFile returns a file store at path (must have .cwt extension)
func OpenFile(path string) (*File, error) {
	// Check file extension (should be .cwt)
	if !strings.HasSuffix(path, ".cwt") {
		return nil, errors.New("file must have .cwt extension")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, unavailable("create directory", err)
	}
	return &File{path: path}, nil
}

// Put writes the record, replacing whatever the file held
func (s *File) Put(id string, rec *model.EncryptedKeyRecord) error {
	if rec.ID != id {
		return fmt.Errorf("record id %q does not match slot %q", rec.ID, id)
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	// Add UTF-8 BOM for proper display in Windows
	fileData := append(append([]byte(nil), utf8BOM...), data...)

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return unavailable("create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return unavailable("chmod", err)
	}
	if _, err := tmp.Write(fileData); err != nil {
		tmp.Close()
		return unavailable("write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return unavailable("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return unavailable("close", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return unavailable("rename", err)
	}
	return nil
}

// Get reads the record, ErrNotFound when the file is missing, empty or holds another id
func (s *File) Get(id string) (*model.EncryptedKeyRecord, error) {
	fileData, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, unavailable("read", err)
	}

	// Skip UTF-8 BOM if present
	fileData = bytes.TrimPrefix(fileData, utf8BOM)
	if len(fileData) == 0 {
		return nil, ErrNotFound
	}

	rec, err := decodeRecord(fileData)
	if err != nil {
		return nil, err
	}
	if rec.ID != id {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Delete removes the file; a missing file is not an error
func (s *File) Delete(id string) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return unavailable("delete", err)
	}
	return nil
}

// Close is a no-op; the file is opened per operation
func (s *File) Close() error { return nil }
