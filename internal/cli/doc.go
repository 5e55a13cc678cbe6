// Package cli реализует инструмент командной строки Fanline.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Fanline API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления instances и кампаниями рассылок.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Fanline API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Дополнительно умеет открывать WebSocket-стрим
// событий instance для пейринга.
//
//	client := cli.NewClient("http://localhost:8080")
//	instances, err := client.ListInstances()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) и QR-коды
// пейринга — в stderr. Это позволяет использовать pipe:
// fanline instance list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - instance: list, create, show, delete, groups, pair
//   - campaign: list, create, show, start, stop, delete
//   - media: upload
//
// Каждая группа создаётся через фабричную функцию (NewInstanceCmd и
// т.д.), принимающую clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli
