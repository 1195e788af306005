package app

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrLLMConfig        = errors.New("llm config is invalid")
	ErrDocumentNotReady = errors.New("document ingestion has not completed")
	ErrHistoryDisabled  = errors.New("turn history is not enabled")
)
