// Package gateway определяет абстракцию протокольной сессии мессенджера.
//
// Остальная система работает только с интерфейсом Session; конкретная
// реализация живёт в подпакете whatsapp.
package gateway

import (
	"context"
	"time"

	"github.com/shaiso/Fanline/internal/domain"
)

// EventKind — тип события сессии.
type EventKind string

// События сессии.
const (
	// EventQR — получен новый QR для пейринга. Поле Code заполнено.
	EventQR EventKind = "qr"

	// EventConnected — сессия подключена и готова отправлять.
	EventConnected EventKind = "connected"

	// EventDisconnected — сессия потеряла соединение.
	EventDisconnected EventKind = "disconnected"

	// EventLoggedOut — аккаунт отвязан на стороне мессенджера.
	// Сессия больше не восстановится без нового пейринга.
	EventLoggedOut EventKind = "logged_out"
)

// Event — событие жизненного цикла сессии.
type Event struct {
	Kind EventKind
	Code string
	At   time.Time
}

// Participant — участник группового чата.
type Participant struct {
	JID     string
	IsAdmin bool
}

// Group — групповой чат, в котором состоит аккаунт.
type Group struct {
	JID  string
	Name string
	Size int
}

// Session — одна протокольная сессия мессенджера.
//
// Реализация потокобезопасна: Send может вызываться из горутины
// потребителя очереди параллельно с обработкой событий.
type Session interface {
	// Connect устанавливает соединение. Если аккаунт ещё не спарен,
	// сессия начинает выдавать EventQR через Events.
	Connect(ctx context.Context) error

	// Disconnect разрывает соединение, не отвязывая аккаунт.
	Disconnect()

	// Connected сообщает, подключена ли сессия прямо сейчас.
	Connected() bool

	// LoggedIn сообщает, есть ли у сессии сохранённые учётные данные.
	LoggedIn() bool

	// Phone возвращает номер телефона аккаунта после пейринга.
	Phone() string

	// DeviceJID возвращает идентификатор устройства после пейринга.
	DeviceJID() string

	// Send отправляет одно сообщение, предварительно имитируя набор
	// текста в течение typing.
	Send(ctx context.Context, toJID string, spec domain.MessageSpec, typing time.Duration) error

	// Participants возвращает участников группового чата.
	Participants(ctx context.Context, chatJID string) ([]Participant, error)

	// Groups возвращает групповые чаты, в которых состоит аккаунт.
	Groups(ctx context.Context) ([]Group, error)

	// Events возвращает канал событий сессии. Канал закрывается
	// вызовом Close.
	Events() <-chan Event

	// Close разрывает соединение и освобождает ресурсы сессии.
	Close()
}
