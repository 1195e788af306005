package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const emptyAnswer = "The model returned an empty response."

// Session owns the append-only turn log, the persona, the last-interaction
// metrics and the citation cursor read by the evidence viewer.
type Session struct {
	id       string
	asker    Asker
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	persona Persona
	turns   []Turn
	lastID  int64
	cursor  string
	hasCur  bool
	metrics Metrics
}

type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func New(asker Asker, opts ...Option) *Session {
	s := &Session{
		id:      uuid.NewString(),
		asker:   asker,
		logger:  zap.NewNop(),
		now:     time.Now,
		persona: DefaultPersona,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// SetPersona changes the persona used for future answers only.
func (s *Session) SetPersona(p Persona) error {
	if !p.Valid() {
		return ErrUnknownPersona
	}
	s.mu.Lock()
	s.persona = p
	s.mu.Unlock()
	return nil
}

func (s *Session) Persona() Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// SubmitQuestion asks the question with the current persona and appends the
// user turn and its assistant turn together. Blank text is a no-op returning
// nil, nil. When the Asker fails nothing is appended.
func (s *Session) SubmitQuestion(ctx context.Context, text string) ([]Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	s.mu.Lock()
	persona := s.persona
	s.mu.Unlock()

	answer, err := s.asker.Ask(ctx, text, persona)
	if err != nil {
		s.logger.Warn("ask failed", zap.String("session_id", s.id), zap.String("persona", string(persona)), zap.Error(err))
		return nil, err
	}
	if err := answer.validate(); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(answer.Content)
	if content == "" {
		content = emptyAnswer
	}
	cost := answer.CostUSD
	latency := answer.LatencyMs

	s.mu.Lock()
	now := s.now()
	user := Turn{
		ID:        s.nextIDLocked(now),
		Role:      RoleUser,
		Content:   text,
		Persona:   persona,
		CreatedAt: now,
	}
	assistant := Turn{
		ID:          s.nextIDLocked(now),
		Role:        RoleAssistant,
		Content:     content,
		CitationIDs: append([]string{}, answer.CitationIDs...),
		CostUSD:     &cost,
		LatencyMs:   &latency,
		Persona:     persona,
		CreatedAt:   now,
	}
	s.turns = append(s.turns, user, assistant)
	s.metrics = Metrics{LatencyMs: &latency, CostUSD: &cost}
	if len(assistant.CitationIDs) > 0 {
		s.cursor = assistant.CitationIDs[0]
		s.hasCur = true
	}
	pair := []Turn{user.clone(), assistant.clone()}
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, s.id, pair); err != nil {
			s.logger.Error("record turns failed", zap.String("session_id", s.id), zap.Error(err))
		}
	}
	return pair, nil
}

// SelectCitation moves the cursor to id. The id is not checked against any
// turn; the evidence viewer handles unknown ids.
func (s *Session) SelectCitation(id string) {
	s.mu.Lock()
	s.cursor = id
	s.hasCur = true
	s.mu.Unlock()
}

func (s *Session) ClearCitation() {
	s.mu.Lock()
	s.cursor = ""
	s.hasCur = false
	s.mu.Unlock()
}

// Cursor returns the selected citation id; ok is false when none is selected.
func (s *Session) Cursor() (id string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, s.hasCur
}

// Turns returns a copy of the log in creation order.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	for i := range s.turns {
		out[i] = s.turns[i].clone()
	}
	return out
}

func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Metrics{}
	if s.metrics.LatencyMs != nil {
		v := *s.metrics.LatencyMs
		m.LatencyMs = &v
	}
	if s.metrics.CostUSD != nil {
		v := *s.metrics.CostUSD
		m.CostUSD = &v
	}
	return m
}

// nextIDLocked derives ids from creation time in milliseconds, bumped past
// the previous id so they stay strictly increasing.
func (s *Session) nextIDLocked(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}
