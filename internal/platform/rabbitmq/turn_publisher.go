package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"ragworkbench/internal/model"
)

// TurnPublisher enqueues turn records for the persist worker.
type TurnPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewTurnPublisher(conn *amqp.Connection, queueName string) *TurnPublisher {
	return &TurnPublisher{conn: conn, queueName: queueName}
}

// Publish sends each record as its own persistent message over one channel.
func (p *TurnPublisher) Publish(ctx context.Context, records []model.TurnRecord) error {
	if len(records) == 0 {
		return nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal turn payload failed: %w", err)
		}
		if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		}); err != nil {
			return fmt.Errorf("publish turn failed: %w", err)
		}
	}
	return nil
}
