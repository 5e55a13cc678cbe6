package domain

import (
	"time"

	"github.com/google/uuid"
)

// Instance — одна управляемая сессия мессенджера.
//
// Instance умеет отправлять сообщения от имени одного аккаунта.
// Поле Active отражает состояние протокольной сессии: true — сессия
// подключена и является рабочим путём отправки, false — аккаунт
// отвязан (logged out) или ещё не спарен.
//
// Instance никогда не удаляется физически, пока на него ссылается
// хотя бы одна кампания.
type Instance struct {
	// ID — уникальный идентификатор instance.
	ID uuid.UUID `json:"id"`

	// Active — подключена ли протокольная сессия прямо сейчас.
	// Переключается обработчиком событий connected/logged-out.
	Active bool `json:"active"`

	// Phone — номер телефона аккаунта (заполняется после пейринга).
	Phone string `json:"phone,omitempty"`

	// DeviceJID — идентификатор устройства в хранилище учётных данных
	// протокольного слоя. Пустой, пока пейринг не завершён.
	DeviceJID string `json:"device_jid,omitempty"`

	// CreatedAt — время создания instance.
	CreatedAt time.Time `json:"created_at"`
}
