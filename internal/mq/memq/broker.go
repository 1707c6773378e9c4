// Package memq — реализация mq.Broker в памяти процесса.
//
// Используется режимом локальной симуляции (montecarlo local) и тестами.
// Повторяет семантику RabbitMQ, важную для протокола:
//   - FIFO в пределах очереди
//   - ручной ack, ограничение неподтверждённых сообщений (prefetch)
//   - nack с requeue возвращает сообщение в голову очереди (redelivered=true)
//   - nack без requeue отправляет сообщение в DLQ очереди (если есть)
//   - per-message TTL (Publishing.Expiration) по часам clockwork
package memq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Montecarlo/internal/mq"
)

// ErrUnknownDeliveryTag — ack/nack для тега, которого брокер не выдавал.
var ErrUnknownDeliveryTag = errors.New("unknown delivery tag")

// message — сообщение в очереди.
type message struct {
	pub         amqp.Publishing
	expiresAt   time.Time
	redelivered bool
}

// expired проверяет TTL сообщения.
func (m *message) expired(now time.Time) bool {
	return !m.expiresAt.IsZero() && !now.Before(m.expiresAt)
}

// inflight — выданное, но не подтверждённое сообщение.
type inflight struct {
	queue    mq.Queue
	msg      *message
	consumer *consumer
}

// consumer — подписчик очереди.
type consumer struct {
	prefetch int
	unacked  int
}

// queue — очередь сообщений.
type queue struct {
	ready     []*message
	consumers int
}

// Broker — брокер сообщений в памяти.
type Broker struct {
	clock clockwork.Clock

	mu       sync.Mutex
	queues   map[mq.Queue]*queue
	inflight map[uint64]*inflight
	nextTag  uint64
	reads    map[mq.Queue]int
	changed  chan struct{}
}

var (
	_ mq.Broker         = (*Broker)(nil)
	_ mq.Admin          = (*Broker)(nil)
	_ amqp.Acknowledger = (*Broker)(nil)
)

// New создаёт брокер. clock может быть nil — тогда используются реальные часы.
func New(clock clockwork.Clock) *Broker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Broker{
		clock:    clock,
		queues:   make(map[mq.Queue]*queue),
		inflight: make(map[uint64]*inflight),
		reads:    make(map[mq.Queue]int),
		changed:  make(chan struct{}),
	}
}

// queueLocked возвращает очередь, создавая её при необходимости.
func (b *Broker) queueLocked(name mq.Queue) *queue {
	q, ok := b.queues[name]
	if !ok {
		q = &queue{}
		b.queues[name] = q
	}
	return q
}

// broadcastLocked будит всех ожидающих consumer'ов.
func (b *Broker) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// Publish кладёт сообщение в конец очереди.
func (b *Broker) Publish(ctx context.Context, name mq.Queue, pub amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &message{pub: pub}
	if pub.Expiration != "" {
		ms, err := strconv.ParseInt(pub.Expiration, 10, 64)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid expiration %q", pub.Expiration)
		}
		msg.expiresAt = b.clock.Now().Add(time.Duration(ms) * time.Millisecond)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queueLocked(name)
	q.ready = append(q.ready, msg)
	b.broadcastLocked()
	return nil
}

// popLocked достаёт первое непросроченное сообщение. Просроченные отбрасываются.
func (b *Broker) popLocked(name mq.Queue, c *consumer) *mq.Delivery {
	q := b.queueLocked(name)
	now := b.clock.Now()

	for len(q.ready) > 0 {
		msg := q.ready[0]
		q.ready = q.ready[1:]

		if msg.expired(now) {
			continue
		}

		b.nextTag++
		tag := b.nextTag
		b.inflight[tag] = &inflight{queue: name, msg: msg, consumer: c}
		if c != nil {
			c.unacked++
		}

		return &mq.Delivery{Raw: amqp.Delivery{
			Acknowledger:  b,
			DeliveryTag:   tag,
			Redelivered:   msg.redelivered,
			RoutingKey:    string(name),
			ContentType:   msg.pub.ContentType,
			DeliveryMode:  msg.pub.DeliveryMode,
			Expiration:    msg.pub.Expiration,
			MessageId:     msg.pub.MessageId,
			Timestamp:     msg.pub.Timestamp,
			Type:          msg.pub.Type,
			CorrelationId: msg.pub.CorrelationId,
			Headers:       msg.pub.Headers,
			Body:          msg.pub.Body,
		}}
	}

	return nil
}

// Get забирает одно сообщение (basic.get).
func (b *Broker) Get(ctx context.Context, name mq.Queue) (*mq.Delivery, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.reads[name]++
	d := b.popLocked(name, nil)
	return d, d != nil, nil
}

// Consume последовательно обрабатывает сообщения очереди, пока не отменён ctx.
func (b *Broker) Consume(ctx context.Context, name mq.Queue, prefetch int, handler mq.Handler) error {
	if prefetch <= 0 {
		prefetch = 1
	}
	c := &consumer{prefetch: prefetch}

	b.mu.Lock()
	b.queueLocked(name).consumers++
	b.reads[name]++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.queueLocked(name).consumers--
		b.mu.Unlock()
	}()

	for {
		b.mu.Lock()
		var d *mq.Delivery
		if c.unacked < c.prefetch {
			d = b.popLocked(name, c)
		}
		wait := b.changed
		b.mu.Unlock()

		if d == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
				continue
			}
		}

		handlerErr := handler(ctx, d)
		if err := mq.Settle(d, handlerErr); err != nil && !errors.Is(err, ErrUnknownDeliveryTag) {
			return fmt.Errorf("settle delivery: %w", err)
		}
	}
}

// settle завершает обработку выданного сообщения.
func (b *Broker) settle(tag uint64, requeue, deadLetter bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.inflight[tag]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDeliveryTag, tag)
	}
	delete(b.inflight, tag)
	if f.consumer != nil {
		f.consumer.unacked--
	}

	switch {
	case requeue:
		f.msg.redelivered = true
		q := b.queueLocked(f.queue)
		q.ready = append([]*message{f.msg}, q.ready...)
	case deadLetter:
		if dlq, ok := mq.DeadLetterQueue(f.queue); ok {
			dead := &message{pub: f.msg.pub}
			dead.pub.Expiration = ""
			b.queueLocked(dlq).ready = append(b.queueLocked(dlq).ready, dead)
		}
	}

	b.broadcastLocked()
	return nil
}

// Ack реализует amqp.Acknowledger.
func (b *Broker) Ack(tag uint64, _ bool) error {
	return b.settle(tag, false, false)
}

// Nack реализует amqp.Acknowledger.
func (b *Broker) Nack(tag uint64, _ bool, requeue bool) error {
	return b.settle(tag, requeue, !requeue)
}

// Reject реализует amqp.Acknowledger.
func (b *Broker) Reject(tag uint64, requeue bool) error {
	return b.settle(tag, requeue, !requeue)
}

// Purge удаляет все готовые сообщения очереди.
func (b *Broker) Purge(_ context.Context, name mq.Queue) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queueLocked(name)
	n := len(q.ready)
	q.ready = nil
	return n, nil
}

// Inspect возвращает состояние очереди (просроченные сообщения не считаются).
func (b *Broker) Inspect(_ context.Context, name mq.Queue) (mq.QueueInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queueLocked(name)
	now := b.clock.Now()

	ready := 0
	for _, msg := range q.ready {
		if !msg.expired(now) {
			ready++
		}
	}

	return mq.QueueInfo{Name: string(name), Messages: ready, Consumers: q.consumers}, nil
}

// Reads возвращает количество обращений к очереди: basic.get и подписки consumer'ов.
func (b *Broker) Reads(name mq.Queue) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads[name]
}

// Unacked возвращает количество неподтверждённых сообщений очереди.
func (b *Broker) Unacked(name mq.Queue) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, f := range b.inflight {
		if f.queue == name {
			n++
		}
	}
	return n
}

// WaitIdle ждёт, пока в очереди не останется ни готовых, ни выданных сообщений.
func (b *Broker) WaitIdle(ctx context.Context, name mq.Queue) error {
	for {
		b.mu.Lock()
		pending := len(b.queueLocked(name).ready)
		for _, f := range b.inflight {
			if f.queue == name {
				pending++
			}
		}
		wait := b.changed
		b.mu.Unlock()

		if pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}
