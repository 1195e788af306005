package devbackend

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeDOC  = "application/msword"
	mimeText = "text/plain"
)

var allowedTypes = map[string][]string{
	mimePDF:  {".pdf"},
	mimeDOCX: {".docx"},
	mimeDOC:  {".doc"},
	mimeText: {".txt"},
}

type validationError struct {
	detail string
}

func (e *validationError) Error() string {
	return e.detail
}

// validateType sniffs the content type and checks the extension agrees with
// it. It returns the canonical allowed MIME type.
func validateType(content []byte, filename string) (string, error) {
	detected := mimetype.Detect(content)

	var mimeType string
	for t := range allowedTypes {
		if detected.Is(t) {
			mimeType = t
			break
		}
	}
	if mimeType == "" {
		base := strings.SplitN(detected.String(), ";", 2)[0]
		return "", &validationError{detail: fmt.Sprintf(
			"Unsupported file type: %s. Allowed types: %s", base, strings.Join(allowedList(), ", "))}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return mimeType, nil
	}
	for _, allowed := range allowedTypes[mimeType] {
		if ext == allowed {
			return mimeType, nil
		}
	}
	return "", &validationError{detail: fmt.Sprintf(
		"File extension %s does not match detected MIME type %s", ext, mimeType)}
}

func allowedList() []string {
	out := make([]string, 0, len(allowedTypes))
	for t := range allowedTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
