package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyDocument = errors.New("empty document")

// ExtractText extracts plain text from an in-memory PDF.
// Returns empty string and nil error if the PDF has no extractable text.
func ExtractText(b []byte) (text string, err error) {
	defer recoverMalformed(&err)
	r, err := open(b)
	if err != nil {
		return "", err
	}
	plainReader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// PageCount returns the number of pages declared by the PDF.
func PageCount(b []byte) (pages int, err error) {
	defer recoverMalformed(&err)
	r, err := open(b)
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

func open(b []byte) (*pdf.Reader, error) {
	if len(b) == 0 {
		return nil, ErrEmptyDocument
	}
	return pdf.NewReader(bytes.NewReader(b), int64(len(b)))
}

// The pdf reader panics on some malformed inputs.
func recoverMalformed(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("malformed pdf: %v", r)
	}
}
