// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает structured logging через slog с настройкой по переменным
// окружения LOG_LEVEL и LOG_FORMAT. Prometheus-метрики определяются
// в бинарях рядом с местом инкремента и экспортируются на /metrics.
//
// Все сервисы используют единый формат логирования.
package telemetry
