package ingest

import (
	"errors"
	"fmt"
)

const (
	MessageUploadRejected  = "Upload failed"
	MessageUploadTransport = "Network error during upload"
	MessageIngestionFailed = "Ingestion failed"
)

var (
	ErrNoFile          = errors.New("no file selected")
	ErrUploadRejected  = errors.New("upload rejected")
	ErrUploadTransport = errors.New("upload transport failure")
	ErrSuperseded      = errors.New("upload superseded by a newer upload")
	ErrTrackerClosed   = errors.New("tracker closed")
	ErrStatusRequest   = errors.New("status request failed")
)

// Kind classifies upload failures.
type Kind int

const (
	KindRejected Kind = iota + 1
	KindTransport
)

// UploadError is returned by StartUpload. Message is what the user sees.
type UploadError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	switch e.Kind {
	case KindRejected:
		return fmt.Sprintf("upload rejected (status %d): %s", e.StatusCode, e.Message)
	default:
		if e.Err != nil {
			return fmt.Sprintf("upload transport failure: %v", e.Err)
		}
		return "upload transport failure"
	}
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func (e *UploadError) Is(target error) bool {
	switch target {
	case ErrUploadRejected:
		return e.Kind == KindRejected
	case ErrUploadTransport:
		return e.Kind == KindTransport
	}
	return false
}
