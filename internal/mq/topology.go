package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
//
// Модель, задачи и результаты публикуются через default exchange
// (routing key = имя очереди), отдельный обменник нужен только для DLQ.
const (
	ExchangeDefault Exchange = ""
	ExchangeDLQ     Exchange = "montecarlo.dlq"
)

// Queues — имена очередей.
const (
	QueueModel    Queue = "montecarlo.model"
	QueueTasks    Queue = "montecarlo.tasks"
	QueueResults  Queue = "montecarlo.results"
	QueueDLQTasks Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeyDLQTasks RoutingKey = "tasks"
)

// queueSpec — описание очереди в топологии.
type queueSpec struct {
	name Queue
	args amqp.Table
}

// queueSpecs возвращает описание всех очередей.
func queueSpecs() []queueSpec {
	// Аргументы для очередей с DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
	}

	return []queueSpec{
		// montecarlo.model — одна модель на run, TTL задаётся per-message
		{QueueModel, nil},

		// montecarlo.tasks — с DLQ (задачи уходят в DLQ после retry)
		{QueueTasks, dlqArgs},

		// montecarlo.results — результаты для агрегатора
		{QueueResults, nil},

		// dlq.tasks — сама DLQ очередь
		{QueueDLQTasks, nil},
	}
}

// AllQueues возвращает имена всех очередей топологии.
func AllQueues() []Queue {
	specs := queueSpecs()
	queues := make([]Queue, len(specs))
	for i, s := range specs {
		queues[i] = s.name
	}
	return queues
}

// DeadLetterQueue возвращает DLQ для очереди (если настроена).
func DeadLetterQueue(queue Queue) (Queue, bool) {
	if queue == QueueTasks {
		return QueueDLQTasks, true
	}
	return "", false
}

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchange для DLQ
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		for _, q := range AllQueues() {
			if err := declareQueue(ch, q); err != nil {
				return err
			}
		}

		// 3. Привязываем DLQ
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeDLQ), // name
		"direct",            // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeDLQ, err)
	}
	return nil
}

// declareQueue создаёт одну очередь по её описанию в топологии.
func declareQueue(ch *amqp.Channel, queue Queue) error {
	var spec *queueSpec
	for _, s := range queueSpecs() {
		if s.name == queue {
			spec = &s
			break
		}
	}
	if spec == nil {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}

	_, err := ch.QueueDeclare(
		string(spec.name), // name
		true,              // durable
		false,             // delete when unused
		false,             // exclusive
		false,             // no-wait
		spec.args,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", spec.name, err)
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	err := ch.QueueBind(
		string(QueueDLQTasks),      // queue name
		string(RoutingKeyDLQTasks), // routing key
		string(ExchangeDLQ),        // exchange
		false,                      // no-wait
		nil,                        // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", QueueDLQTasks, ExchangeDLQ, err)
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Montecarlo RabbitMQ Topology:

    (default exchange)
    ├── montecarlo.model    — ModelDescriptor (per-message TTL)
    │       Consumer: Worker (basic.get, один раз)
    ├── montecarlo.tasks    — ScenarioTask
    │       Consumer: Worker (prefetch=1)
    │       DLQ: dlq.tasks
    └── montecarlo.results  — ResultRecord
            Consumer: Aggregator

    montecarlo.dlq (direct)
    └── dlq.tasks [routing: tasks]
            Manual processing
  `
}
