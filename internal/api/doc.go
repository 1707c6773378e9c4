// Package api содержит HTTP API Aggregator'а (только чтение).
//
// Структура:
//   - handler.go          — Handler с DI (источник снимков, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (request id, logging, recovery)
//   - response.go         — унифицированные JSON-ответы
//   - dto.go              — Data Transfer Objects
//   - estimate_handler.go — обработчики /estimate, /workers, /healthz
package api
