package devbackend

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragworkbench/internal/pkg/pdfextract"
)

var errNoContent = errors.New(messageNoContent)

type stage struct {
	step     string
	progress int
}

var pipeline = []stage{
	{step: "extracting_text", progress: 10},
	{step: "chunking", progress: 30},
	{step: "generating_embeddings", progress: 60},
	{step: "storing_vectors", progress: 85},
	{step: "finalizing", progress: 95},
}

func (s *Server) start(t *task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(t)
	}()
}

func (s *Server) run(t *task) {
	var text string
	for _, st := range pipeline {
		if !s.wait() {
			return
		}
		s.update(t, statusProcessing, st.step, st.progress, "")

		switch st.step {
		case "extracting_text":
			extracted, err := extractText(t)
			if err != nil {
				s.fail(t, err)
				return
			}
			text = extracted
		case "chunking":
			chunks := len(splitText(text, chunkSize, chunkOverlap))
			if chunks == 0 {
				chunks = 1
			}
			s.mu.Lock()
			t.chunks = chunks
			s.mu.Unlock()
		}
	}
	if !s.wait() {
		return
	}
	s.update(t, statusCompleted, statusCompleted, 100, "")
	s.mu.Lock()
	t.data = nil
	chunks := t.chunks
	s.mu.Unlock()
	s.logger.Info("ingestion completed", zap.String("task_id", t.id), zap.Int("chunks", chunks))
}

// wait sleeps one step delay; false means the server is shutting down.
func (s *Server) wait() bool {
	if s.cfg.StepDelay == 0 {
		return s.ctx.Err() == nil
	}
	timer := time.NewTimer(s.cfg.StepDelay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Server) update(t *task, status, step string, progress int, errMsg string) {
	s.mu.Lock()
	t.status = status
	t.step = step
	t.progress = progress
	t.err = errMsg
	s.mu.Unlock()
}

func (s *Server) fail(t *task, err error) {
	s.update(t, statusFailed, "error", 0, err.Error())
	s.mu.Lock()
	t.data = nil
	s.mu.Unlock()
	s.logger.Warn("ingestion failed", zap.String("task_id", t.id), zap.String("file", t.fileName), zap.Error(err))
}

// extractText pulls plain text out of the upload. Word documents have no
// extractor here; any non-empty body counts as content.
func extractText(t *task) (string, error) {
	switch t.mimeType {
	case mimePDF:
		text, err := pdfextract.ExtractText(t.data)
		if err != nil {
			if errors.Is(err, pdfextract.ErrEmptyDocument) {
				return "", errNoContent
			}
			return "", fmt.Errorf("read pdf failed: %w", err)
		}
		if strings.TrimSpace(text) == "" {
			return "", errNoContent
		}
		return text, nil
	case mimeText:
		text := strings.ToValidUTF8(string(t.data), "")
		if strings.TrimSpace(text) == "" {
			return "", errNoContent
		}
		return text, nil
	default:
		if len(t.data) == 0 {
			return "", errNoContent
		}
		return "", nil
	}
}
