package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"ragworkbench/internal/pkg/pdfextract"
)

const mimePDF = "application/pdf"

// File is a document selected for upload.
type File struct {
	Name string
	Data []byte
}

// OpenFile reads a file from disk for upload.
func OpenFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read upload file failed: %w", err)
	}
	return &File{Name: filepath.Base(path), Data: data}, nil
}

func (f *File) present() bool {
	return f != nil && strings.TrimSpace(f.Name) != ""
}

// Inspect detects the MIME type and, for PDFs, the page count. It never fails;
// unreadable documents simply report no pages.
func (f *File) Inspect() FileInfo {
	info := FileInfo{Name: f.Name, Size: int64(len(f.Data))}
	if len(f.Data) == 0 {
		return info
	}
	mtype := mimetype.Detect(f.Data)
	info.MIMEType = mtype.String()
	if mtype.Is(mimePDF) {
		if pages, err := pdfextract.PageCount(f.Data); err == nil {
			info.Pages = pages
		}
	}
	return info
}
