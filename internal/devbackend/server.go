package devbackend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"ragworkbench/internal/ingest"
)

const (
	statusPending    = "pending"
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusFailed     = "failed"

	messageNoContent = "No extractable content found in document"

	defaultMaxUpload = 10 << 20
	taskTTL          = time.Hour
)

type Config struct {
	StepDelay      time.Duration
	UploadDir      string
	MaxUploadBytes int64
}

type task struct {
	id       string
	userID   string
	fileName string
	mimeType string
	data     []byte

	status   string
	step     string
	progress int
	err      string
	chunks   int
}

// Server is an in-process stand-in for the ingestion backend. It accepts
// uploads, runs a simulated pipeline per task and answers status queries.
type Server struct {
	cfg    Config
	logger *zap.Logger
	tasks  *cache.Cache

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, logger *zap.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.StepDelay < 0 {
		cfg.StepDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.Named("devbackend"),
		tasks:  cache.New(taskTTL, 10*time.Minute),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	s.Register(router)
	return router
}

func (s *Server) Register(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "devbackend"})
	})
	v1 := r.Group("/api/v1/ingest")
	v1.POST("/upload", s.upload)
	v1.GET("/status/:task_id", s.status)
}

// Close stops every running pipeline and waits for them.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) upload(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(ingest.HeaderUserID))
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Missing " + ingest.HeaderUserID + " header"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": s.tooLargeDetail()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "A file is required in form field 'file'"})
		return
	}
	name := filepath.Base(strings.TrimSpace(fh.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Uploaded file has no filename"})
		return
	}
	if fh.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": s.tooLargeDetail()})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Could not read uploaded file"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Could not read uploaded file"})
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": s.tooLargeDetail()})
		return
	}

	mimeType, err := validateType(data, name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if s.cfg.UploadDir != "" {
		if _, err := s.store(userID, name, data); err != nil {
			s.logger.Error("store upload failed", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to store upload"})
			return
		}
	}

	t := &task{
		id:       uuid.NewString(),
		userID:   userID,
		fileName: name,
		mimeType: mimeType,
		data:     data,
		status:   statusPending,
	}
	s.tasks.SetDefault(t.id, t)
	s.start(t)

	s.logger.Info("upload accepted",
		zap.String("task_id", t.id),
		zap.String("user_id", userID),
		zap.String("file", name),
		zap.String("mime", mimeType),
		zap.Int("bytes", len(data)))
	c.JSON(http.StatusAccepted, gin.H{"task_id": t.id})
}

// status reports a task. Unknown ids read as pending.
func (s *Server) status(c *gin.Context) {
	resp := ingest.StatusResponse{Status: statusPending}
	if v, ok := s.tasks.Get(c.Param("task_id")); ok {
		resp = s.snapshot(v.(*task))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) snapshot(t *task) ingest.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := ingest.StatusResponse{Status: t.status, Progress: t.progress}
	if t.step != "" {
		step := t.step
		resp.Step = &step
	}
	if t.err != "" {
		msg := t.err
		resp.Error = &msg
	}
	return resp
}

func (s *Server) tooLargeDetail() string {
	return fmt.Sprintf("File exceeds maximum size of %d MB", s.cfg.MaxUploadBytes>>20)
}

// store keeps the upload under <dir>/<user>/<uuid>_<name>.
func (s *Server) store(userID, name string, data []byte) (string, error) {
	dir := filepath.Join(s.cfg.UploadDir, filepath.Base(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir failed: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+"_"+name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload failed: %w", err)
	}
	return path, nil
}
