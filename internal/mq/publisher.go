package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Montecarlo/internal/domain"
)

// MessageType — тип сообщения в очереди (AMQP property "type").
type MessageType string

// Типы сообщений.
const (
	MessageTypeModel  MessageType = "model.descriptor"
	MessageTypeTask   MessageType = "scenario.task"
	MessageTypeResult MessageType = "scenario.result"
)

// Заголовки сообщения результата с меткой модели.
const (
	HeaderModelVersion = "x-model-version"
	HeaderStrategy     = "x-model-strategy"
	HeaderMultiplier   = "x-model-multiplier"
)

// DefaultModelTTL — время жизни невостребованного дескриптора модели.
const DefaultModelTTL = 10 * time.Minute

// Publisher публикует доменные сообщения через Broker.
type Publisher struct {
	broker Broker
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(broker Broker, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		broker: broker,
		logger: logger,
	}
}

// NewJSONPublishing сериализует payload в persistent AMQP сообщение.
// ttl > 0 выставляет expiration: брокер удалит невостребованное сообщение.
func NewJSONPublishing(msgType MessageType, messageID string, payload any, ttl time.Duration) (amqp.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal %s: %w", msgType, err)
	}

	if messageID == "" {
		messageID = uuid.NewString()
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    messageID,
		Type:         string(msgType),
		Timestamp:    time.Now(),
		Body:         body,
	}

	if ttl > 0 {
		msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	return msg, nil
}

// publish публикует payload в очередь.
func (p *Publisher) publish(ctx context.Context, queue Queue, msgType MessageType, id string, payload any, ttl time.Duration, headers amqp.Table) error {
	msg, err := NewJSONPublishing(msgType, id, payload, ttl)
	if err != nil {
		return err
	}
	msg.Headers = headers

	if err := p.broker.Publish(ctx, queue, msg); err != nil {
		return err
	}

	p.logger.Debug("published message",
		"queue", queue,
		"message_id", msg.MessageId,
		"type", msgType,
	)

	return nil
}

// PublishModel публикует дескриптор модели с TTL.
// Потребитель: Worker (один раз при bootstrap).
func (p *Publisher) PublishModel(ctx context.Context, model domain.ModelDescriptor, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultModelTTL
	}
	return p.publish(ctx, QueueModel, MessageTypeModel, "", model, ttl, nil)
}

// PublishTask публикует задачу сценария.
// Потребитель: Worker.
func (p *Publisher) PublishTask(ctx context.Context, task domain.ScenarioTask) error {
	return p.publish(ctx, QueueTasks, MessageTypeTask, task.ID, task, 0, nil)
}

// PublishResult публикует результат сценария с меткой модели в заголовках.
// Потребитель: Aggregator.
func (p *Publisher) PublishResult(ctx context.Context, rec domain.ResultRecord, stamp domain.ModelStamp) error {
	return p.publish(ctx, QueueResults, MessageTypeResult, "", rec, 0, StampHeaders(stamp))
}

// StampHeaders переводит метку модели в AMQP заголовки.
// Пустая версия — без заголовков.
func StampHeaders(stamp domain.ModelStamp) amqp.Table {
	if stamp.Version == "" {
		return nil
	}
	return amqp.Table{
		HeaderModelVersion: stamp.Version,
		HeaderStrategy:     stamp.Strategy,
		HeaderMultiplier:   stamp.Multiplier,
	}
}
