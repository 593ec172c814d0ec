/**
 * File Handles and Metadata for TradeImport
 *
 * Features:
 * - FileHandle abstraction over disk files and in-memory uploads
 * - Metadata derivation (extension, MIME type)
 * - Allow-list and size validation
 *
 * Author: TradeImport Team
 * Updated: 2025-02-11
 */

package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
)

// FileHandle is an openable source file. Handles live in memory only and
// are never serialized.
type FileHandle interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type diskFile struct {
	path string
	size int64
}

// OpenFile returns a handle for a file on disk.
func OpenFile(path string) (FileHandle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeValidation, "stat_file", path, err)
	}
	if info.IsDir() {
		return nil, errors.New(errors.ErrorTypeValidation, "stat_file", path, fmt.Errorf("is a directory"))
	}
	return &diskFile{path: path, size: info.Size()}, nil
}

func (f *diskFile) Name() string { return filepath.Base(f.path) }
func (f *diskFile) Size() int64  { return f.size }

func (f *diskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

type memoryFile struct {
	name string
	data []byte
}

// NewMemoryFile wraps bytes already held in memory, such as an HTTP upload.
func NewMemoryFile(name string, data []byte) FileHandle {
	return &memoryFile{name: name, data: data}
}

func (f *memoryFile) Name() string { return f.name }
func (f *memoryFile) Size() int64  { return int64(len(f.data)) }

func (f *memoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// FileMetadata describes a candidate file.
type FileMetadata struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MIMEType  string `json:"mimeType"`
	Extension string `json:"extension"`
}

var mimeTypes = map[string]string{
	"csv":  "text/csv",
	"txt":  "text/plain",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"xlsm": "application/vnd.ms-excel.sheet.macroEnabled.12",
	"xls":  "application/vnd.ms-excel",
}

// NewMetadata derives metadata from a file name and size.
func NewMetadata(name string, size int64) FileMetadata {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	mime, ok := mimeTypes[ext]
	if !ok {
		mime = "application/octet-stream"
	}
	return FileMetadata{
		Name:      name,
		Size:      size,
		MIMEType:  mime,
		Extension: ext,
	}
}

// Describe returns the metadata of a handle.
func Describe(fh FileHandle) FileMetadata {
	return NewMetadata(fh.Name(), fh.Size())
}

// IsSpreadsheet reports whether the file goes through the Excel parser.
func (m FileMetadata) IsSpreadsheet() bool {
	switch m.Extension {
	case "xlsx", "xlsm", "xls":
		return true
	}
	return false
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Err converts a rejection into a typed validation error.
func (r ValidationResult) Err(name string) error {
	if r.Valid {
		return nil
	}
	return errors.New(errors.ErrorTypeValidation, "validate_file", name, errors.NewSimple(r.Reason))
}

// Validate checks a file against an extension allow-list and a byte cap.
// A zero maxBytes disables the size check. Legacy .xls workbooks are
// refused even when the allow-list names them.
func Validate(meta FileMetadata, allowed []string, maxBytes int64) ValidationResult {
	if meta.Extension == "xls" {
		return ValidationResult{
			Reason: "Legacy .xls workbooks are not supported, save the file as .xlsx",
		}
	}

	if !ExtensionAllowed(meta.Extension, allowed) {
		return ValidationResult{
			Reason: fmt.Sprintf("File type .%s is not supported", meta.Extension),
		}
	}

	if maxBytes > 0 && meta.Size > maxBytes {
		return ValidationResult{
			Reason: fmt.Sprintf("File size %s MB exceeds maximum allowed size of %s MB",
				formatMB(meta.Size), formatMB(maxBytes)),
		}
	}

	if meta.Size == 0 {
		return ValidationResult{Reason: "File is empty"}
	}

	return ValidationResult{Valid: true}
}

// ExtensionAllowed reports whether ext is on the allow-list, ignoring
// case and a leading dot on either side.
func ExtensionAllowed(ext string, allowed []string) bool {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}

func formatMB(n int64) string {
	mb := float64(n) / (1024 * 1024)
	if mb == float64(int64(mb)) {
		return fmt.Sprintf("%d", int64(mb))
	}
	return fmt.Sprintf("%.2f", mb)
}
