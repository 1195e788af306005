package view

import (
	"fmt"
	"strconv"

	"golang.org/x/text/language"

	"ragworkbench/internal/ingest"
	"ragworkbench/internal/session"
)

// Input is the workbench state a page is rendered from.
type Input struct {
	Ingestion ingest.Snapshot
	Persona   session.Persona
	Turns     []session.Turn
	Cursor    string
	Metrics   session.Metrics
}

type Page struct {
	Locale        string    `json:"locale"`
	Title         string    `json:"title"`
	Subtitle      string    `json:"subtitle"`
	StageLabel    string    `json:"stage_label"`
	Progress      int       `json:"progress"`
	ProgressLabel string    `json:"progress_label"`
	Error         string    `json:"error,omitempty"`
	FileName      string    `json:"file_name,omitempty"`
	UploadHint    string    `json:"upload_hint"`
	AcceptedTypes string    `json:"accepted_types"`
	PersonaLabel  string    `json:"persona_label"`
	Latency       Metric    `json:"latency"`
	Cost          Metric    `json:"cost"`
	Messages      []Message `json:"messages"`
	EmptyHint     string    `json:"empty_hint,omitempty"`
	QuestionHint  string    `json:"question_hint"`
}

type Metric struct {
	Caption string `json:"caption"`
	Value   string `json:"value"`
}

type Message struct {
	ID        int64   `json:"id"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Citations []Badge `json:"citations,omitempty"`
}

// Badge is one clickable citation marker.
type Badge struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

const acceptedTypes = ".pdf,.doc,.docx,.txt"

func Render(in Input, locale language.Tag) Page {
	s := Catalog(locale)
	snap := in.Ingestion

	page := Page{
		Locale:        locale.String(),
		Title:         s.Title,
		Subtitle:      s.Subtitle,
		StageLabel:    StageLabel(snap, s),
		Progress:      snap.Progress,
		ProgressLabel: fmt.Sprintf("%d%%", snap.Progress),
		Error:         snap.Error,
		UploadHint:    s.UploadHint + " · " + s.SupportedTypes,
		AcceptedTypes: acceptedTypes,
		PersonaLabel:  personaLabel(in.Persona, s),
		Latency:       Metric{Caption: s.LatencyCaption, Value: FormatLatency(in.Metrics.LatencyMs, s.NoValue)},
		Cost:          Metric{Caption: s.CostCaption, Value: FormatCost(in.Metrics.CostUSD, s.NoValue)},
		QuestionHint:  s.QuestionHint,
		Messages:      make([]Message, 0, len(in.Turns)),
	}
	if snap.File != nil {
		page.FileName = snap.File.Name
	}
	for _, t := range in.Turns {
		msg := Message{ID: t.ID, Role: string(t.Role), Content: t.Content}
		for _, id := range t.CitationIDs {
			msg.Citations = append(msg.Citations, Badge{ID: id, Label: "[" + id + "]", Selected: id == in.Cursor})
		}
		page.Messages = append(page.Messages, msg)
	}
	if len(page.Messages) == 0 {
		page.EmptyHint = s.EmptyConversation
	}
	return page
}

// StageLabel names the ingestion stage; while processing, the backend step
// is shown verbatim when present.
func StageLabel(snap ingest.Snapshot, s Strings) string {
	switch snap.Stage {
	case ingest.StageUploading:
		return s.StageUploading
	case ingest.StageProcessing:
		if snap.Step != "" {
			return snap.Step
		}
		return s.StageProcessing
	case ingest.StageCompleted:
		return s.StageCompleted
	default:
		return s.StageIdle
	}
}

func personaLabel(p session.Persona, s Strings) string {
	if p == session.PersonaSarcastic {
		return s.PersonaSarcastic
	}
	return s.PersonaTechnical
}

// FormatLatency renders milliseconds as seconds with no trailing zeros,
// 1500 -> "1.5s".
func FormatLatency(ms *int64, none string) string {
	if ms == nil {
		return none
	}
	return strconv.FormatFloat(float64(*ms)/1000, 'f', -1, 64) + "s"
}

// FormatCost renders USD with four decimals, 0.01 -> "$0.0100".
func FormatCost(usd *float64, none string) string {
	if usd == nil {
		return none
	}
	return fmt.Sprintf("$%.4f", *usd)
}
