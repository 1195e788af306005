package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrUnknownPersona = errors.New("unknown persona")
	ErrInvalidAnswer  = errors.New("invalid answer")
)

// Persona selects how future assistant turns are phrased.
type Persona string

const (
	PersonaSarcastic Persona = "sarcastic"
	PersonaTechnical Persona = "technical"

	DefaultPersona = PersonaTechnical
)

func ParsePersona(raw string) (Persona, error) {
	p := Persona(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPersona, raw)
	}
	return p, nil
}

func (p Persona) Valid() bool {
	return p == PersonaSarcastic || p == PersonaTechnical
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable entry of the conversation log. CostUSD and LatencyMs
// are set on assistant turns only.
type Turn struct {
	ID          int64     `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	CitationIDs []string  `json:"citation_ids,omitempty"`
	CostUSD     *float64  `json:"cost_usd,omitempty"`
	LatencyMs   *int64    `json:"latency_ms,omitempty"`
	Persona     Persona   `json:"persona"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t Turn) clone() Turn {
	if t.CitationIDs != nil {
		t.CitationIDs = append([]string(nil), t.CitationIDs...)
	}
	if t.CostUSD != nil {
		v := *t.CostUSD
		t.CostUSD = &v
	}
	if t.LatencyMs != nil {
		v := *t.LatencyMs
		t.LatencyMs = &v
	}
	return t
}

// Answer is what an Asker produces for one question.
type Answer struct {
	Content     string
	CitationIDs []string
	CostUSD     float64
	LatencyMs   int64
}

func (a Answer) validate() error {
	if a.CostUSD < 0 || math.IsNaN(a.CostUSD) || math.IsInf(a.CostUSD, 0) {
		return fmt.Errorf("%w: cost %v", ErrInvalidAnswer, a.CostUSD)
	}
	if a.LatencyMs < 0 {
		return fmt.Errorf("%w: negative latency %d", ErrInvalidAnswer, a.LatencyMs)
	}
	return nil
}

// Asker produces the assistant answer for a question. CitationIDs is empty
// only when the backend found no evidence.
type Asker interface {
	Ask(ctx context.Context, text string, persona Persona) (Answer, error)
}

// Recorder receives every committed user/assistant pair, e.g. for
// persistence. Failures are logged and never roll back the log.
type Recorder interface {
	Record(ctx context.Context, sessionID string, turns []Turn) error
}

// Metrics holds the values of the most recent assistant turn.
type Metrics struct {
	LatencyMs *int64   `json:"latency_ms,omitempty"`
	CostUSD   *float64 `json:"cost_usd,omitempty"`
}
