package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragworkbench/internal/ingest"
	"ragworkbench/internal/session"
)

type WorkbenchOptions struct {
	PollInterval    time.Duration
	RequireIngested bool
	Recorder        session.Recorder
	Logger          *zap.Logger
}

// Workbench is one user's view: a document ingestion tracker next to the
// conversation about that document.
type Workbench struct {
	userID          string
	tracker         *ingest.Tracker
	session         *session.Session
	requireIngested bool
}

// State is a point-in-time copy of everything a renderer needs.
type State struct {
	UserID         string          `json:"user_id"`
	SessionID      string          `json:"session_id"`
	Ingestion      ingest.Snapshot `json:"ingestion"`
	Persona        session.Persona `json:"persona"`
	Turns          []session.Turn  `json:"turns"`
	CitationCursor string          `json:"citation_cursor,omitempty"`
	Metrics        session.Metrics `json:"metrics"`
}

func NewWorkbench(userID string, backend ingest.Backend, asker session.Asker, opts WorkbenchOptions) *Workbench {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("user_id", userID))

	trackerOpts := []ingest.Option{ingest.WithLogger(logger)}
	if opts.PollInterval > 0 {
		trackerOpts = append(trackerOpts, ingest.WithPollInterval(opts.PollInterval))
	}
	sessionOpts := []session.Option{session.WithLogger(logger)}
	if opts.Recorder != nil {
		sessionOpts = append(sessionOpts, session.WithRecorder(opts.Recorder))
	}

	return &Workbench{
		userID:          userID,
		tracker:         ingest.NewTracker(backend, trackerOpts...),
		session:         session.New(asker, sessionOpts...),
		requireIngested: opts.RequireIngested,
	}
}

func (w *Workbench) UserID() string {
	return w.userID
}

func (w *Workbench) SessionID() string {
	return w.session.ID()
}

func (w *Workbench) Upload(ctx context.Context, file *ingest.File) (ingest.Snapshot, error) {
	return w.tracker.StartUpload(ctx, file)
}

func (w *Workbench) Ingestion() ingest.Snapshot {
	return w.tracker.Snapshot()
}

func (w *Workbench) SetPersona(raw string) (session.Persona, error) {
	p, err := session.ParsePersona(raw)
	if err != nil {
		return w.session.Persona(), err
	}
	if err := w.session.SetPersona(p); err != nil {
		return w.session.Persona(), err
	}
	return p, nil
}

// Ask submits a question. With RequireIngested set, questions are refused
// until the current document has completed ingestion.
func (w *Workbench) Ask(ctx context.Context, text string) ([]session.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if w.requireIngested && !w.tracker.Snapshot().Ready() {
		return nil, ErrDocumentNotReady
	}
	return w.session.SubmitQuestion(ctx, text)
}

func (w *Workbench) SelectCitation(id string) {
	w.session.SelectCitation(id)
}

func (w *Workbench) ClearCitation() {
	w.session.ClearCitation()
}

func (w *Workbench) Turns() []session.Turn {
	return w.session.Turns()
}

func (w *Workbench) State() State {
	cursor, _ := w.session.Cursor()
	return State{
		UserID:         w.userID,
		SessionID:      w.session.ID(),
		Ingestion:      w.tracker.Snapshot(),
		Persona:        w.session.Persona(),
		Turns:          w.session.Turns(),
		CitationCursor: cursor,
		Metrics:        w.session.Metrics(),
	}
}

// Close stops any background status polling.
func (w *Workbench) Close() {
	w.tracker.Close()
}
