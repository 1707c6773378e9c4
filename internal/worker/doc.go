// Package worker выполняет задачи сценариев Монте-Карло.
//
// # Обзор
//
// Worker — stateless компонент, привязанный к одной стратегии на всё время
// жизни. Горизонтальное масштабирование — запуск ещё одного процесса:
// у экземпляров нет общего состояния в памяти.
//
// # Жизненный цикл
//
//	BOOTSTRAPPING → READY → PROCESSING → READY → …
//	                                   ↘ STOPPED
//
//  1. Handshake (опционально): один вызов Negotiator с таймаутом.
//     Отказ или таймаут — DefaultUnitSize из конфигурации.
//  2. Bootstrap: basic.get из очереди модели. Пусто — пауза
//     BootstrapInterval и снова, без лимита попыток, до отмены ctx.
//     Ack дескриптора только после успешного создания стратегии,
//     иначе nack с requeue. До READY очередь задач не читается.
//  3. Цикл задач: consume с prefetch=1.
//
// # Обработка задачи
//
//  1. Разбор и проверка (sample_count > 0). Мусор — ack и лог.
//  2. Выполнение стратегии с бюджетом TaskTimeout.
//  3. Публикация ResultRecord (persistent), затем ack.
//     Ошибка публикации — nack с requeue.
//
// # Ошибки выполнения
//
// Retry выполняется в процессе (cenkalti/backoff), до MaxAttempts попыток.
// После исчерпания действует FailurePolicy:
//   - dead-letter (по умолчанию): nack без requeue, задача уходит в dlq.tasks
//   - drop: ack и лог, задача теряется
//
// Остановка worker'а во время выполнения возвращает задачу в очередь.
package worker
