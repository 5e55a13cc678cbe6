package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job — плановая отправка одному получателю в рамках одной кампании.
//
// Пара (RecipientJID, CampaignID) уникальна: получатель участвует в
// кампании не более одного раза, сколько бы раз его ни переназначали
// между instances.
type Job struct {
	// RecipientJID — адрес получателя.
	RecipientJID string `json:"recipient_jid"`

	// CampaignID — кампания, которой принадлежит job.
	CampaignID uuid.UUID `json:"campaign_id"`

	// InstanceID — instance, назначенный на отправку. nil, когда job
	// снят с очереди и ждёт переназначения.
	InstanceID *uuid.UUID `json:"instance_id,omitempty"`

	// QueueID — идентификатор актуальной постановки в очередь
	// доставки. Доставка с другим QueueID считается устаревшей и
	// отбрасывается потребителем. nil — job не стоит в очереди.
	QueueID *uuid.UUID `json:"queue_id,omitempty"`

	// Sent — отправка подтверждена протокольным слоем.
	Sent bool `json:"sent"`

	// Failed — отправка окончательно провалена после исчерпания
	// повторов.
	Failed bool `json:"failed"`

	// Attempts — число выполненных попыток отправки.
	Attempts int `json:"attempts"`

	// Position — позиция получателя в исходном списке кампании.
	// Сохраняется, чтобы повторная раздача шла в исходном порядке.
	Position int `json:"position"`

	// CreatedAt — время создания job.
	CreatedAt time.Time `json:"created_at"`
}

// Terminal сообщает, достиг ли job конечного статуса.
func (j *Job) Terminal() bool {
	return j.Sent || j.Failed
}

// Live сообщает, ожидает ли job доставки: не терминален и стоит в
// очереди какого-то instance.
func (j *Job) Live() bool {
	return !j.Terminal() && j.QueueID != nil
}
