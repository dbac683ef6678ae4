package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"askpdf/internal/model"
)

// CleanupPublisher enqueues index removal jobs for the cleanup worker.
type CleanupPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewCleanupPublisher(conn *amqp.Connection, queueName string) *CleanupPublisher {
	return &CleanupPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *CleanupPublisher) PublishCleanup(ctx context.Context, job model.IndexCleanupJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal cleanup job failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			MessageId:    job.SessionID,
		},
	); err != nil {
		return fmt.Errorf("publish cleanup job failed: %w", err)
	}
	return nil
}
