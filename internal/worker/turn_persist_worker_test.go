package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragworkbench/internal/model"
)

type memoryStore struct {
	records []model.TurnRecord
	err     error
}

func (s *memoryStore) Create(_ context.Context, record *model.TurnRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, *record)
	return nil
}

func TestHandleStoresDecodedTurn(t *testing.T) {
	store := &memoryStore{}
	w := NewTurnPersistWorker(nil, store, "q", nil)

	body := []byte(`{"id":7,"session_id":"s1","user_id":"u1","turn_id":1700000000000,"role":"assistant","content":"A [1]","citation_ids":["1"],"persona":"technical","cost_usd":0.01,"latency_ms":1500}`)
	require.NoError(t, w.Handle(context.Background(), body))

	require.Len(t, store.records, 1)
	got := store.records[0]
	assert.Zero(t, got.ID)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, int64(1700000000000), got.TurnID)
	assert.Equal(t, []string{"1"}, got.CitationIDs)
	require.NotNil(t, got.LatencyMs)
	assert.Equal(t, int64(1500), *got.LatencyMs)
}

func TestHandleRejectsBadPayloads(t *testing.T) {
	w := NewTurnPersistWorker(nil, &memoryStore{}, "q", nil)

	assert.Error(t, w.Handle(context.Background(), []byte(`{`)))
	assert.Error(t, w.Handle(context.Background(), []byte(`{"session_id":"s1"}`)))
}

func TestHandlePropagatesStoreError(t *testing.T) {
	storeErr := errors.New("db down")
	w := NewTurnPersistWorker(nil, &memoryStore{err: storeErr}, "q", nil)

	err := w.Handle(context.Background(), []byte(`{"session_id":"s1","turn_id":1,"role":"user","content":"q"}`))
	assert.ErrorIs(t, err, storeErr)
}
