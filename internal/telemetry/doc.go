// Package telemetry — логирование и метрики сервисов montecarlo.
//
//   - logging.go — slog из LOG_LEVEL / LOG_FORMAT, логгер в context,
//     поля component, worker_id, task_id
//   - metrics.go — Prometheus коллекторы worker'а, aggregator'а и producer'а
//
// Метрики регистрируются в default registry и отдаются через promhttp на /metrics.
package telemetry
