package model

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// TurnRecord is the stored form of one conversation turn.
type TurnRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   string    `gorm:"size:64;not null;index:idx_turn_session_turn,priority:1" json:"session_id"`
	UserID      string    `gorm:"size:128;not null;index" json:"user_id"`
	TurnID      int64     `gorm:"not null;index:idx_turn_session_turn,priority:2" json:"turn_id"`
	Role        string    `gorm:"size:16;not null" json:"role"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Citations   string    `gorm:"type:text" json:"-"`
	Persona     string    `gorm:"size:32" json:"persona"`
	CostUSD     *float64  `json:"cost_usd,omitempty"`
	LatencyMs   *int64    `json:"latency_ms,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CitationIDs []string  `gorm:"-" json:"citation_ids"`
}

func (TurnRecord) TableName() string {
	return "workbench_turns"
}

// BeforeSave flattens CitationIDs into the Citations column.
func (r *TurnRecord) BeforeSave(_ *gorm.DB) error {
	if len(r.CitationIDs) == 0 {
		r.Citations = "[]"
		return nil
	}
	raw, err := json.Marshal(r.CitationIDs)
	if err != nil {
		return err
	}
	r.Citations = string(raw)
	return nil
}

// AfterFind restores CitationIDs from the Citations column.
func (r *TurnRecord) AfterFind(_ *gorm.DB) error {
	r.CitationIDs = nil
	if r.Citations == "" {
		return nil
	}
	return json.Unmarshal([]byte(r.Citations), &r.CitationIDs)
}
