package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"ragworkbench/internal/model"
	"ragworkbench/internal/platform/rabbitmq"
)

type TurnStore interface {
	Create(ctx context.Context, record *model.TurnRecord) error
}

// TurnPersistWorker drains the turn queue into the turn store.
type TurnPersistWorker struct {
	conn      *amqp.Connection
	store     TurnStore
	queueName string
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTurnPersistWorker(conn *amqp.Connection, store TurnStore, queueName string, logger *zap.Logger) *TurnPersistWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnPersistWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		logger:    logger.Named("turn-worker"),
	}
}

func (w *TurnPersistWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("delivery channel closed")
					return
				}
				if err := w.Handle(workerCtx, d.Body); err != nil {
					w.logger.Error("persist turn failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("turn worker started", zap.String("queue", w.queueName))
	return nil
}

// Handle decodes one queued turn and stores it.
func (w *TurnPersistWorker) Handle(ctx context.Context, body []byte) error {
	var record model.TurnRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return fmt.Errorf("decode turn payload failed: %w", err)
	}
	if record.SessionID == "" || record.TurnID == 0 {
		return fmt.Errorf("turn payload missing session or turn id")
	}
	record.ID = 0
	if err := w.store.Create(ctx, &record); err != nil {
		return err
	}
	w.logger.Debug("turn persisted",
		zap.String("session_id", record.SessionID),
		zap.Int64("turn_id", record.TurnID),
		zap.String("role", record.Role))
	return nil
}

func (w *TurnPersistWorker) Close() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}
