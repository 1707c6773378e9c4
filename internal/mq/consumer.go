package mq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int
	declare  func(ch *amqp.Channel) error
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество неподтверждённых сообщений на consumer (default: 1).
	Prefetch int

	// Declare — объявление очереди перед подпиской (опционально).
	Declare func(ch *amqp.Channel) error
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
		declare:  cfg.Declare,
	}
}

// Start потребляет сообщения до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Получаем канал доставки
		deliveries, err := c.setupConsume(ctx)
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			// Ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.queue, "prefetch", c.prefetch)

		// Обрабатываем сообщения
		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Закрыт только канал (соединение живо) — WithChannel откроет новый
			if c.conn.IsConnected() {
				c.logger.Warn("channel closed, resubscribing", "queue", c.queue)
				continue
			}

			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
			// Соединение закрыто, ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume(ctx context.Context) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery

	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if c.declare != nil {
			if err := c.declare(ch); err != nil {
				return err
			}
		}

		// Устанавливаем prefetch
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}

		// Начинаем потребление
		d, err := ch.Consume(
			string(c.queue), // queue
			"",              // consumer tag (auto-generated)
			false,           // auto-ack (мы ack вручную)
			false,           // exclusive
			false,           // no-local
			false,           // no-wait
			nil,             // args
		)
		if err != nil {
			return fmt.Errorf("consume: %w", err)
		}

		deliveries = d
		return nil
	})

	return deliveries, err
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	delivery := &Delivery{Raw: raw}

	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", raw.MessageId,
		"type", raw.Type,
		"redelivered", raw.Redelivered,
	)

	handlerErr := c.handler(ctx, delivery)
	if handlerErr != nil {
		c.logger.Debug("handler returned error",
			"queue", c.queue,
			"message_id", raw.MessageId,
			"error", handlerErr,
		)
	}

	if err := Settle(delivery, handlerErr); err != nil {
		c.logger.Error("failed to settle message",
			"queue", c.queue,
			"message_id", raw.MessageId,
			"error", err,
		)
	}
}
