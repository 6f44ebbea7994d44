package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// MaxDeliveryRetries is how often a failed message is retried before it is
// moved to the dead-letter queue.
const MaxDeliveryRetries = 10

// ErrMalformed marks a message that can never be processed.
var ErrMalformed = errors.New("malformed message")

// Handler processes one message body.
type Handler func(ctx context.Context, body []byte) error

// ExecuteHandler decodes job tasks and runs them on m.
func ExecuteHandler(m *jobs.Manager) Handler {
	return func(ctx context.Context, body []byte) error {
		var task jobs.Task
		if err := json.Unmarshal(body, &task); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if task.JobID == "" {
			return fmt.Errorf("%w: missing job id", ErrMalformed)
		}
		return m.Execute(ctx, task)
	}
}

// Consume delivers messages of queueName one at a time to handle until ctx
// is done or the channel closes.
func Consume(ctx context.Context, ch *amqp091.Channel, queueName string, handle Handler) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(queueName, queueName+"_consumer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", queueName)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("[Queue] Message channel closed", "queue", queueName)
				return nil
			}
			process(ctx, ch, queueName, msg, handle)
		}
	}
}

func process(ctx context.Context, ch publisher, queueName string, msg amqp091.Delivery, handle Handler) {
	start := time.Now()
	logger.Info("[Queue] Received message", "queue", queueName)

	if err := handle(ctx, msg.Body); err != nil {
		logger.Error("[Queue] Error processing message", "queue", queueName, "err", err)
		handleProcessingError(ctx, ch, msg, queueName, errors.Is(err, ErrMalformed))
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
	logger.Info("[Queue] Message processed", "queue", queueName, "duration", time.Since(start).Round(time.Millisecond))
}

// handleProcessingError republishes msg to the retry queue, or to the
// dead-letter queue once retries are used up or the message is permanent
// garbage. The original delivery is acked after a successful republish.
func handleProcessingError(ctx context.Context, ch publisher, msg amqp091.Delivery, queueName string, permanent bool) {
	retries := retryCount(msg.Headers)
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	target := queueName + retrySuffix
	if permanent || retries >= MaxDeliveryRetries {
		target = queueName + dlqSuffix
		logger.Warn("[Queue] Sending message to DLQ", "dlq", target, "retries", retries)
	} else {
		headers["x-retries"] = int32(retries + 1)
	}

	err := ch.PublishWithContext(ctx, "", target, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to republish", "queue", target, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
