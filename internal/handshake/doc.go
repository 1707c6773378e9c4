// Package handshake реализует одноразовое согласование размера задачи.
//
// Worker один раз перед циклом задач отправляет {worker_id} и получает
// {accepted, unit_size, message}. Транспорт — gRPC сервис
// montecarlo.Handshake/Negotiate с JSON кодеком (без сгенерированных stub'ов).
//
// Resolve никогда не блокируется дольше таймаута: отказ, ошибка или
// таймаут дают локальный размер по умолчанию.
package handshake
