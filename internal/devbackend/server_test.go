package devbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragworkbench/internal/ingest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newBackend(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(cfg, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func trackUntilSettled(t *testing.T, baseURL string, file *ingest.File) ingest.Snapshot {
	t.Helper()
	tracker := ingest.NewTracker(ingest.NewClient(baseURL, "user-1", time.Second), ingest.WithPollInterval(5*time.Millisecond))
	defer tracker.Close()

	_, err := tracker.StartUpload(context.Background(), file)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap := tracker.Snapshot()
		return snap.Stage == ingest.StageCompleted || snap.Stage == ingest.StageIdle
	}, 2*time.Second, 5*time.Millisecond)
	return tracker.Snapshot()
}

func TestTextDocumentCompletes(t *testing.T) {
	_, ts := newBackend(t, Config{})

	snap := trackUntilSettled(t, ts.URL, &ingest.File{Name: "notes.txt", Data: []byte(strings.Repeat("raft log replication ", 200))})
	assert.Equal(t, ingest.StageCompleted, snap.Stage)
	assert.Equal(t, 100, snap.Progress)
	assert.Empty(t, snap.TaskID)
	assert.Empty(t, snap.Error)
}

func TestBlankDocumentFails(t *testing.T) {
	_, ts := newBackend(t, Config{})

	snap := trackUntilSettled(t, ts.URL, &ingest.File{Name: "blank.txt", Data: []byte("   \n\t  ")})
	assert.Equal(t, ingest.StageIdle, snap.Stage)
	assert.Equal(t, messageNoContent, snap.Error)
	assert.Empty(t, snap.TaskID)
}

func TestUploadRejections(t *testing.T) {
	_, ts := newBackend(t, Config{MaxUploadBytes: 64})
	client := ingest.NewClient(ts.URL, "user-1", time.Second)

	tests := []struct {
		name   string
		file   *ingest.File
		status int
		detail string
	}{
		{
			name:   "unsupported type",
			file:   &ingest.File{Name: "tool.exe", Data: append([]byte("MZ"), bytes.Repeat([]byte{0}, 40)...)},
			status: http.StatusBadRequest,
			detail: "Unsupported file type",
		},
		{
			name:   "extension mismatch",
			file:   &ingest.File{Name: "document.docx", Data: []byte("%PDF-1.4 fake")},
			status: http.StatusBadRequest,
			detail: "File extension .docx does not match detected MIME type application/pdf",
		},
		{
			name:   "too large",
			file:   &ingest.File{Name: "big.txt", Data: bytes.Repeat([]byte("a"), 65)},
			status: http.StatusRequestEntityTooLarge,
			detail: "File exceeds maximum size",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Upload(context.Background(), tt.file)
			var uploadErr *ingest.UploadError
			require.ErrorAs(t, err, &uploadErr)
			assert.Equal(t, ingest.KindRejected, uploadErr.Kind)
			assert.Equal(t, tt.status, uploadErr.StatusCode)
			assert.Contains(t, uploadErr.Message, tt.detail)
		})
	}
}

func TestUploadRequiresUserHeader(t *testing.T) {
	srv := New(Config{}, nil)
	defer srv.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "a.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("hello"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownTaskReadsPending(t *testing.T) {
	srv := New(Config{}, nil)
	defer srv.Close()

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ingest/status/nope", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ingest.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, statusPending, resp.Status)
	assert.Zero(t, resp.Progress)
	assert.Nil(t, resp.Step)
	assert.Nil(t, resp.Error)
}

func TestUploadStoredPerUser(t *testing.T) {
	dir := t.TempDir()
	_, ts := newBackend(t, Config{UploadDir: dir})

	taskID, err := ingest.NewClient(ts.URL, "user-7", time.Second).Upload(context.Background(),
		&ingest.File{Name: "notes.txt", Data: []byte("hello")})
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	matches, err := filepath.Glob(filepath.Join(dir, "user-7", "*_notes.txt"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	raw, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", string(raw))
}

func TestSplitText(t *testing.T) {
	assert.Nil(t, splitText("  \n ", 10, 2))
	assert.Equal(t, []string{"a b c"}, splitText("a\n b   c", 10, 2))

	chunks := splitText(strings.Repeat("x", 25), 10, 3)
	require.Len(t, chunks, 4)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[3], 4)
}
