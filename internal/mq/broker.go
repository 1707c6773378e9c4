package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Montecarlo/internal/domain"
)

// Broker — контракт транспорта, которым пользуются Worker, Producer и Aggregator.
//
// Реализации: AMQPBroker (RabbitMQ) и memq.Broker (в памяти).
// Гарантии: durable, at-least-once, FIFO в пределах соединения продюсера.
type Broker interface {
	// Publish публикует сообщение в очередь.
	Publish(ctx context.Context, queue Queue, msg amqp.Publishing) error

	// Get забирает одно сообщение без подписки (ack вручную).
	// ok=false — очередь пуста.
	Get(ctx context.Context, queue Queue) (d *Delivery, ok bool, err error)

	// Consume подписывается на очередь и обрабатывает сообщения
	// последовательно. Не более prefetch неподтверждённых сообщений.
	// Блокируется до отмены ctx.
	Consume(ctx context.Context, queue Queue, prefetch int, handler Handler) error
}

// Admin — операции обслуживания очередей.
type Admin interface {
	// Purge удаляет все готовые сообщения, возвращает их количество.
	Purge(ctx context.Context, queue Queue) (int, error)

	// Inspect возвращает состояние очереди.
	Inspect(ctx context.Context, queue Queue) (QueueInfo, error)
}

// QueueInfo — состояние очереди.
type QueueInfo struct {
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
}

// Handler — функция обработки сообщения.
//
// nil — ack; ошибка, оборачивающая ErrRequeue — nack с возвратом в очередь;
// любая другая ошибка — nack без возврата (сообщение уходит в DLQ, если он
// настроен для очереди, иначе отбрасывается).
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение с методами ack/nack.
type Delivery struct {
	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.Raw.Body
}

// MessageID возвращает AMQP message-id.
func (d *Delivery) MessageID() string {
	return d.Raw.MessageId
}

// Redelivered — сообщение доставляется повторно.
func (d *Delivery) Redelivered() bool {
	return d.Raw.Redelivered
}

// ModelStamp возвращает метку модели из заголовков результата.
// ok=false — версии в заголовках нет.
func (d *Delivery) ModelStamp() (stamp domain.ModelStamp, ok bool) {
	version, _ := d.Raw.Headers[HeaderModelVersion].(string)
	if version == "" {
		return domain.ModelStamp{}, false
	}

	stamp.Version = version
	stamp.Strategy, _ = d.Raw.Headers[HeaderStrategy].(string)
	stamp.Multiplier = headerFloat(d.Raw.Headers[HeaderMultiplier])
	return stamp, true
}

// headerFloat приводит числовой заголовок к float64; иное — 0.
func headerFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отправить в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Settle подтверждает или отклоняет сообщение по результату обработчика.
func Settle(d *Delivery, handlerErr error) error {
	switch {
	case handlerErr == nil:
		return d.Ack()
	case errors.Is(handlerErr, ErrRequeue):
		return d.Nack(true)
	default:
		return d.Nack(false)
	}
}

// AMQPBroker — реализация Broker поверх RabbitMQ.
type AMQPBroker struct {
	conn   *Connection
	logger *slog.Logger

	// declared — очереди, уже объявленные на текущем канале.
	mu       sync.Mutex
	declared map[Queue]bool
}

var (
	_ Broker = (*AMQPBroker)(nil)
	_ Admin  = (*AMQPBroker)(nil)
)

// NewAMQPBroker создаёт AMQPBroker.
func NewAMQPBroker(conn *Connection, logger *slog.Logger) *AMQPBroker {
	if logger == nil {
		logger = slog.Default()
	}

	b := &AMQPBroker{
		conn:     conn,
		logger:   logger,
		declared: make(map[Queue]bool),
	}

	return b
}

// ensureQueue объявляет очередь, если она ещё не объявлена (ChannelAbsent).
func (b *AMQPBroker) ensureQueue(ch *amqp.Channel, queue Queue) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.declared[queue] {
		return nil
	}

	if err := declareQueue(ch, queue); err != nil {
		return err
	}
	if _, ok := DeadLetterQueue(queue); ok {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueue(ch, QueueDLQTasks); err != nil {
			return err
		}
		if err := bindQueues(ch); err != nil {
			return err
		}
	}

	b.declared[queue] = true
	b.logger.Debug("queue declared on demand", "queue", queue)
	return nil
}

// forget сбрасывает кэш объявленных очередей (после 404 или reconnect).
func (b *AMQPBroker) forget() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declared = make(map[Queue]bool)
}

// Publish публикует сообщение через default exchange.
func (b *AMQPBroker) Publish(ctx context.Context, queue Queue, msg amqp.Publishing) error {
	return b.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := b.ensureQueue(ch, queue); err != nil {
			return err
		}

		err := ch.PublishWithContext(
			ctx,
			string(ExchangeDefault), // exchange
			string(queue),           // routing key
			false,                   // mandatory
			false,                   // immediate
			msg,
		)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", queue, err)
		}

		return nil
	})
}

// Get забирает одно сообщение (basic.get).
func (b *AMQPBroker) Get(ctx context.Context, queue Queue) (*Delivery, bool, error) {
	var (
		delivery *Delivery
		found    bool
	)

	get := func(ch *amqp.Channel) error {
		if err := b.ensureQueue(ch, queue); err != nil {
			return err
		}

		raw, ok, err := ch.Get(string(queue), false)
		if err != nil {
			return err
		}
		if ok {
			delivery = &Delivery{Raw: raw}
			found = true
		}
		return nil
	}

	err := b.conn.WithChannel(ctx, get)
	if isNotFound(err) {
		// Очередь удалили после объявления: канал закрыт брокером,
		// WithChannel откроет новый, объявляем заново.
		b.forget()
		err = b.conn.WithChannel(ctx, get)
	}
	if err != nil {
		return nil, false, fmt.Errorf("get from %s: %w", queue, err)
	}

	return delivery, found, nil
}

// Consume запускает Consumer и блокируется до отмены ctx.
func (b *AMQPBroker) Consume(ctx context.Context, queue Queue, prefetch int, handler Handler) error {
	consumer := NewConsumer(b.conn, b.logger, ConsumerConfig{
		Queue:    queue,
		Handler:  handler,
		Prefetch: prefetch,
		Declare: func(ch *amqp.Channel) error {
			b.forget()
			return b.ensureQueue(ch, queue)
		},
	})

	return consumer.Start(ctx)
}

// Purge удаляет все готовые сообщения очереди.
func (b *AMQPBroker) Purge(ctx context.Context, queue Queue) (int, error) {
	var purged int
	err := b.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := b.ensureQueue(ch, queue); err != nil {
			return err
		}

		n, err := ch.QueuePurge(string(queue), false)
		if err != nil {
			return fmt.Errorf("purge %s: %w", queue, err)
		}
		purged = n
		return nil
	})
	return purged, err
}

// Inspect возвращает состояние очереди.
func (b *AMQPBroker) Inspect(ctx context.Context, queue Queue) (QueueInfo, error) {
	var info QueueInfo
	err := b.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := b.ensureQueue(ch, queue); err != nil {
			return err
		}

		q, err := ch.QueueDeclarePassive(string(queue), true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", queue, err)
		}
		info = QueueInfo{Name: q.Name, Messages: q.Messages, Consumers: q.Consumers}
		return nil
	})
	return info, err
}

// isNotFound проверяет, что брокер ответил 404 NOT_FOUND.
func isNotFound(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound
}
