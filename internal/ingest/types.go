package ingest

// Stage is the tracker-side lifecycle stage of an upload.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageUploading  Stage = "uploading"
	StageProcessing Stage = "processing"
	StageCompleted  Stage = "completed"
	// StageFailed is part of the stage vocabulary, but the tracker reports a
	// failed ingestion as StageIdle with Error set so a new upload can start.
	StageFailed Stage = "failed"
)

// Backend statuses reported by GET /api/v1/ingest/status/{task_id}.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	StepUploading = "uploading"
	StepPending   = "pending"

	progressUploading = 5
	progressAccepted  = 10
)

// FileInfo describes the document being ingested.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mime_type"`
	Pages    int    `json:"pages,omitempty"`
}

// Snapshot is the single observable state of a Tracker.
type Snapshot struct {
	TaskID   string    `json:"task_id,omitempty"`
	Stage    Stage     `json:"stage"`
	Step     string    `json:"step,omitempty"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	File     *FileInfo `json:"file,omitempty"`
}

// Ready reports whether the last ingestion completed.
func (s Snapshot) Ready() bool {
	return s.Stage == StageCompleted
}

func (s Snapshot) clone() Snapshot {
	if s.File != nil {
		info := *s.File
		s.File = &info
	}
	return s
}

// StatusResponse is the body of the status endpoint.
type StatusResponse struct {
	Status   string  `json:"status"`
	Step     *string `json:"step"`
	Progress int     `json:"progress"`
	Error    *string `json:"error"`
}

type uploadResponse struct {
	TaskID string `json:"task_id"`
}
