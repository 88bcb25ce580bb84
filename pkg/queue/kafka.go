package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/etlstack/platform/pkg/common/logger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type KafkaQueue struct {
	brokers []string
	writer  *kafka.Writer
	reader  *kafka.Reader
}

func NewKafkaQueue(brokers []string, topic, groupID string) *KafkaQueue {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &KafkaQueue{brokers: brokers, writer: writer, reader: reader}
}

func (q *KafkaQueue) Publish(ctx context.Context, msg Dispatch) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(msg.JobID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "job-id", Value: []byte(msg.JobID)},
		},
	}

	if err := q.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"dispatch_id": msg.ID,
			"job_id":      msg.JobID,
		}).Error("Failed to publish dispatch")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"dispatch_id": msg.ID,
		"job_id":      msg.JobID,
		"topic":       q.writer.Topic,
	}).Info("Job dispatched")

	return nil
}

func (q *KafkaQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := q.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Log.WithError(err).Error("Failed to fetch message")
				continue
			}

			var msg Dispatch
			if err := json.Unmarshal(message.Value, &msg); err != nil {
				logger.Log.WithError(err).Error("Failed to unmarshal dispatch")
				q.reader.CommitMessages(ctx, message)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				logger.Log.WithError(err).WithFields(map[string]interface{}{
					"dispatch_id": msg.ID,
					"job_id":      msg.JobID,
				}).Error("Failed to process dispatch")
				// Don't commit on error, will be redelivered
				continue
			}

			if err := q.reader.CommitMessages(ctx, message); err != nil {
				logger.Log.WithError(err).Error("Failed to commit message")
			}
		}
	}
}

// Ping dials the first broker; used by the health probe.
func (q *KafkaQueue) Ping(ctx context.Context) error {
	if len(q.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", q.brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Brokers()
	return err
}

func (q *KafkaQueue) Close() error {
	if err := q.writer.Close(); err != nil {
		return err
	}
	return q.reader.Close()
}
