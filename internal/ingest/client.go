package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	HeaderUserID   = "X-User-ID"

	uploadPath = "/api/v1/ingest/upload"
	statusPath = "/api/v1/ingest/status/"
)

// Backend is the ingestion service consumed by the Tracker.
type Backend interface {
	Upload(ctx context.Context, file *File) (string, error)
	Status(ctx context.Context, taskID string) (*StatusResponse, error)
}

// Client talks to the ingestion HTTP API.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

func NewClient(baseURL, userID string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		userID:     userID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload submits the file as multipart field "file" and returns the task id.
// Failures are always *UploadError.
func (c *Client) Upload(ctx context.Context, file *File) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return "", &UploadError{Kind: KindTransport, Message: MessageUploadTransport, Err: fmt.Errorf("build multipart body failed: %w", err)}
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", &UploadError{Kind: KindTransport, Message: MessageUploadTransport, Err: fmt.Errorf("write multipart body failed: %w", err)}
	}
	if err := writer.Close(); err != nil {
		return "", &UploadError{Kind: KindTransport, Message: MessageUploadTransport, Err: fmt.Errorf("close multipart body failed: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, &body)
	if err != nil {
		return "", &UploadError{Kind: KindTransport, Message: MessageUploadTransport, Err: fmt.Errorf("build upload request failed: %w", err)}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.userID != "" {
		req.Header.Set(HeaderUserID, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UploadError{Kind: KindTransport, Message: MessageUploadTransport, Err: fmt.Errorf("upload request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UploadError{Kind: KindTransport, Message: MessageUploadTransport, Err: fmt.Errorf("read upload response failed: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UploadError{
			Kind:       KindRejected,
			StatusCode: resp.StatusCode,
			Message:    rejectionMessage(raw),
		}
	}

	var parsed uploadResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &UploadError{Kind: KindTransport, Message: MessageUploadTransport, Err: fmt.Errorf("parse upload json failed: %w", err)}
	}
	if strings.TrimSpace(parsed.TaskID) == "" {
		return "", &UploadError{Kind: KindRejected, StatusCode: resp.StatusCode, Message: MessageUploadRejected}
	}
	return parsed.TaskID, nil
}

// Status queries the ingestion status of one task.
func (c *Client) Status(ctx context.Context, taskID string) (*StatusResponse, error) {
	endpoint := c.baseURL + statusPath + url.PathEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request failed: %w", err)
	}
	if c.userID != "" {
		req.Header.Set(HeaderUserID, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrStatusRequest, resp.StatusCode)
	}

	var parsed StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse status json failed: %w", err)
	}
	return &parsed, nil
}

// rejectionMessage uses a string "detail" field verbatim, any other body
// shape falls back to the default message.
func rejectionMessage(raw []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return MessageUploadRejected
	}
	detail, ok := body.Detail.(string)
	if !ok || detail == "" {
		return MessageUploadRejected
	}
	return detail
}
