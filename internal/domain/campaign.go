package domain

import (
	"time"

	"github.com/google/uuid"
)

// Типы элементов Messages кампании.
const (
	MessageTypeText  = "text"  // простой текст
	MessageTypeImage = "image" // изображение с подписью
	MessageTypeAudio = "audio" // аудио (PTT — голосовая заметка)
)

// MessageSpec — один элемент шаблона рассылки.
//
// Кампания отправляет каждому получателю последовательность
// MessageSpec в порядке их следования.
type MessageSpec struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	File string `json:"file,omitempty"`
	PTT  bool   `json:"ptt,omitempty"`
}

// Campaign — кампания рассылки: кому, что и с какой скоростью
// отправлять через закреплённые за кампанией instances.
//
// Все интервалы задаются в секундах парами (min, max); фактическое
// значение каждый раз выбирается равномерно из [min, max].
type Campaign struct {
	// ID — уникальный идентификатор кампании.
	ID uuid.UUID `json:"id"`

	// TargetChatID — идентификатор группового чата, участники
	// которого становятся получателями рассылки.
	TargetChatID string `json:"target_chat_id"`

	// Messages — последовательность сообщений для каждого получателя.
	Messages []MessageSpec `json:"messages"`

	// MinDelaySec / MaxDelaySec — шаг общего расписания: пауза между
	// соседними получателями в глобальной очереди кампании.
	MinDelaySec int `json:"min_delay_sec"`
	MaxDelaySec int `json:"max_delay_sec"`

	// MinMessageDelaySec / MaxMessageDelaySec — пауза между
	// сообщениями одному получателю.
	MinMessageDelaySec int `json:"min_message_delay_sec"`
	MaxMessageDelaySec int `json:"max_message_delay_sec"`

	// MinTypingSec / MaxTypingSec — длительность имитации набора
	// текста перед отправкой каждого сообщения.
	MinTypingSec int `json:"min_typing_sec"`
	MaxTypingSec int `json:"max_typing_sec"`

	// BlockAdmins — исключать ли администраторов чата из получателей.
	BlockAdmins bool `json:"block_admins"`

	// Active — идёт ли рассылка. Кампания становится неактивной по
	// команде stop или когда все jobs достигли терминального статуса.
	Active bool `json:"active"`

	// Instances — instances, закреплённые за кампанией. Порядок
	// фиксируется при создании и определяет round-robin раздачу.
	Instances []uuid.UUID `json:"instances"`

	// CreatedAt — время создания кампании.
	CreatedAt time.Time `json:"created_at"`
}

// MinDelay возвращает нижнюю границу шага расписания как Duration.
func (c *Campaign) MinDelay() time.Duration {
	return time.Duration(c.MinDelaySec) * time.Second
}

// MaxDelay возвращает верхнюю границу шага расписания как Duration.
func (c *Campaign) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySec) * time.Second
}

// Progress — сводка выполнения кампании по её jobs.
type Progress struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Done сообщает, достигли ли все jobs кампании терминального статуса.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Sent+p.Failed >= p.Total
}
