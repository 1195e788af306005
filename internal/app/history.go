package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"ragworkbench/internal/model"
	"ragworkbench/internal/session"
)

type TurnPublisher interface {
	Publish(ctx context.Context, records []model.TurnRecord) error
}

type TurnReader interface {
	ListBySessionID(ctx context.Context, userID, sessionID string, limit int) ([]model.TurnRecord, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.TurnRecord, bool, error)
	SetHistory(ctx context.Context, sessionID string, records []model.TurnRecord) error
	Invalidate(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

// HistoryService publishes committed turns and serves the persisted log.
// A zero HistoryService (no publisher, no reader) records nothing.
type HistoryService struct {
	publisher TurnPublisher
	reader    TurnReader
	cache     HistoryCache
	logger    *zap.Logger
}

func NewHistoryService(publisher TurnPublisher, reader TurnReader, cache HistoryCache, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{publisher: publisher, reader: reader, cache: cache, logger: logger.Named("history")}
}

func (h *HistoryService) Enabled() bool {
	return h != nil && h.publisher != nil && h.reader != nil
}

// RecorderFor binds the service to one user so sessions can hand it their
// committed pairs.
func (h *HistoryService) RecorderFor(userID string) session.Recorder {
	return &turnRecorder{userID: userID, history: h}
}

func (h *HistoryService) publish(ctx context.Context, userID, sessionID string, turns []session.Turn) error {
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, sessionID); err != nil {
			h.logger.Warn("invalidate history cache failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return h.publisher.Publish(ctx, ToRecords(userID, sessionID, turns))
}

// GetHistory returns the persisted turns of sessionID, newest limit, oldest
// first. The cache is bypassed while the session is dirty.
func (h *HistoryService) GetHistory(ctx context.Context, userID, sessionID string, limit int) ([]model.TurnRecord, error) {
	if !h.Enabled() {
		return nil, ErrHistoryDisabled
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidInput
	}

	if h.cache != nil {
		dirty, err := h.cache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := h.cache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return trimRecords(cached, limit), nil
			}
		}
	}

	records, err := h.reader.ListBySessionID(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if h.cache != nil {
		if dirty, err := h.cache.IsDirty(ctx, sessionID); err == nil && !dirty {
			if err := h.cache.SetHistory(ctx, sessionID, records); err != nil {
				h.logger.Debug("fill history cache failed", zap.Error(err))
			}
		}
	}
	return records, nil
}

// ToRecords maps session turns to their stored form.
func ToRecords(userID, sessionID string, turns []session.Turn) []model.TurnRecord {
	records := make([]model.TurnRecord, 0, len(turns))
	for _, t := range turns {
		records = append(records, model.TurnRecord{
			SessionID:   sessionID,
			UserID:      userID,
			TurnID:      t.ID,
			Role:        string(t.Role),
			Content:     t.Content,
			CitationIDs: t.CitationIDs,
			Persona:     string(t.Persona),
			CostUSD:     t.CostUSD,
			LatencyMs:   t.LatencyMs,
			CreatedAt:   t.CreatedAt,
		})
	}
	return records
}

func trimRecords(records []model.TurnRecord, limit int) []model.TurnRecord {
	if limit <= 0 || limit >= len(records) {
		return records
	}
	return records[len(records)-limit:]
}

type turnRecorder struct {
	userID  string
	history *HistoryService
}

func (r *turnRecorder) Record(ctx context.Context, sessionID string, turns []session.Turn) error {
	return r.history.publish(ctx, r.userID, sessionID, turns)
}
