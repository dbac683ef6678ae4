package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"askpdf/internal/model"
)

type SessionLookup interface {
	GetBySessionID(ctx context.Context, sessionID string) (*model.Session, error)
}

type IndexRemover interface {
	Remove(sessionID string) (bool, error)
}

// IndexCleanupWorker removes on-disk indexes of deleted sessions that the
// request path could not remove itself.
type IndexCleanupWorker struct {
	conn      *amqp.Connection
	sessions  SessionLookup
	indexes   IndexRemover
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIndexCleanupWorker(
	conn *amqp.Connection,
	sessions SessionLookup,
	indexes IndexRemover,
	queueName string,
	logger *slog.Logger,
) *IndexCleanupWorker {
	return &IndexCleanupWorker{
		conn:      conn,
		sessions:  sessions,
		indexes:   indexes,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *IndexCleanupWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

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
					return
				}
				if err := w.Handle(workerCtx, d.Body); err != nil {
					w.logger.Error("index cleanup failed", "error", err, "message_id", d.MessageId)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

// Handle processes one cleanup job payload. An index whose session row
// exists again is left untouched.
func (w *IndexCleanupWorker) Handle(ctx context.Context, body []byte) error {
	var job model.IndexCleanupJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode cleanup job failed: %w", err)
	}
	if job.SessionID == "" {
		return fmt.Errorf("cleanup job without session id")
	}

	session, err := w.sessions.GetBySessionID(ctx, job.SessionID)
	if err != nil {
		return err
	}
	if session != nil {
		w.logger.Warn("skip cleanup of live session index", "session_id", job.SessionID)
		return nil
	}

	removed, err := w.indexes.Remove(job.SessionID)
	if err != nil {
		return fmt.Errorf("remove index of session %s: %w", job.SessionID, err)
	}
	w.logger.Info("index cleanup done", "session_id", job.SessionID, "removed", removed, "reason", job.Reason)
	return nil
}

func (w *IndexCleanupWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
