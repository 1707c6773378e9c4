// Package cli реализует инструмент командной строки montecarlo.
//
// # Обзор
//
// CLI — утилита оператора. Публикует workload напрямую в брокер,
// обслуживает очереди и читает оценку из HTTP API Aggregator'а.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API Aggregator'а. Разбирает конверты ответа
// (DataResponse, ListResponse, ErrorResponse).
//
//	client := cli.NewClient("http://localhost:8083")
//	est, err := client.GetEstimate()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Successf) — в stderr.
// Это позволяет использовать pipe: montecarlo estimate --json | jq .
//
// ## Commands
//
//   - produce: модель + задачи из файла или из --points
//   - purge:   очистка очередей модели, задач, результатов и DLQ
//   - status:  глубина очередей
//   - estimate: текущая оценка и активность worker'ов
//   - local:   producer, N worker'ов и aggregator в одном процессе (memq)
//
// Команды получают зависимости через фабрики (BrokerFunc, clientFn,
// outputFn): замыкания вызываются после парсинга PersistentFlags.
package cli
