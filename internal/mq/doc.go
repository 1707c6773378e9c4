// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (ограниченный dial, reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - broker.go     — контракт Broker, Delivery, AMQPBroker
//   - publisher.go  — публикация доменных сообщений
//   - consumer.go   — потребление сообщений из очередей
//
// Реализация в памяти — подпакет memq.
//
// Типы сообщений:
//   - model.descriptor — дескриптор модели (один на run, с TTL)
//   - scenario.task    — задача сценария
//   - scenario.result  — результат сценария
//
// Очереди:
//   - montecarlo.model    — модель
//   - montecarlo.tasks    — задачи (DLQ: dlq.tasks)
//   - montecarlo.results  — результаты
//   - dlq.tasks           — dead letter queue
package mq
