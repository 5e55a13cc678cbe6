package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fanline/internal/domain"
	"github.com/shaiso/Fanline/internal/gateway"
)

// InstanceResponse — instance в ответе API.
type InstanceResponse struct {
	ID        uuid.UUID `json:"id"`
	Active    bool      `json:"active"`
	Connected bool      `json:"connected"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InstanceFromDomain конвертирует доменный instance в DTO.
// connected берётся из живой сессии, а не из ledger.
func InstanceFromDomain(inst *domain.Instance, connected bool) InstanceResponse {
	return InstanceResponse{
		ID:        inst.ID,
		Active:    inst.Active,
		Connected: connected,
		Phone:     inst.Phone,
		CreatedAt: inst.CreatedAt,
	}
}

// GroupResponse — групповой чат instance в ответе API.
type GroupResponse struct {
	JID  string `json:"jid"`
	Name string `json:"name"`
	Size int    `json:"size"`
}

// GroupFromGateway конвертирует группу протокольного слоя в DTO.
func GroupFromGateway(g gateway.Group) GroupResponse {
	return GroupResponse{
		JID:  g.JID,
		Name: g.Name,
		Size: g.Size,
	}
}

// EventResponse — событие сессии в WebSocket-стриме.
type EventResponse struct {
	Kind string    `json:"kind"`
	Code string    `json:"code,omitempty"`
	At   time.Time `json:"at"`
}

// EventFromGateway конвертирует событие сессии в DTO.
func EventFromGateway(evt gateway.Event) EventResponse {
	return EventResponse{
		Kind: string(evt.Kind),
		Code: evt.Code,
		At:   evt.At,
	}
}

// MessageSpecDTO — один элемент шаблона рассылки.
type MessageSpecDTO struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	File string `json:"file,omitempty"`
	PTT  bool   `json:"ptt,omitempty"`
}

// CreateCampaignRequest — запрос на создание кампании.
type CreateCampaignRequest struct {
	TargetChatID       string           `json:"target_chat_id"`
	Messages           []MessageSpecDTO `json:"messages"`
	MinDelaySec        int              `json:"min_delay_sec"`
	MaxDelaySec        int              `json:"max_delay_sec"`
	MinMessageDelaySec int              `json:"min_message_delay_sec"`
	MaxMessageDelaySec int              `json:"max_message_delay_sec"`
	MinTypingSec       int              `json:"min_typing_sec"`
	MaxTypingSec       int              `json:"max_typing_sec"`
	BlockAdmins        bool             `json:"block_admins"`
	InstanceIDs        []uuid.UUID      `json:"instance_ids"`
}

// MediaResponse — результат загрузки файла рассылки.
type MediaResponse struct {
	File string `json:"file"`
	Size int64  `json:"size"`
}

// StartCampaignRequest — необязательное тело запуска кампании.
// Непустой InstanceIDs заменяет набор instances кампании.
type StartCampaignRequest struct {
	InstanceIDs []uuid.UUID `json:"instance_ids"`
}

// CampaignResponse — кампания в ответе API.
type CampaignResponse struct {
	ID                 uuid.UUID        `json:"id"`
	TargetChatID       string           `json:"target_chat_id"`
	Messages           []MessageSpecDTO `json:"messages"`
	MinDelaySec        int              `json:"min_delay_sec"`
	MaxDelaySec        int              `json:"max_delay_sec"`
	MinMessageDelaySec int              `json:"min_message_delay_sec"`
	MaxMessageDelaySec int              `json:"max_message_delay_sec"`
	MinTypingSec       int              `json:"min_typing_sec"`
	MaxTypingSec       int              `json:"max_typing_sec"`
	BlockAdmins        bool             `json:"block_admins"`
	Active             bool             `json:"active"`
	InstanceIDs        []uuid.UUID      `json:"instance_ids"`
	CreatedAt          time.Time        `json:"created_at"`

	// Progress заполняется только в ответе GetCampaign.
	Progress *ProgressResponse `json:"progress,omitempty"`
}

// ProgressResponse — сводка выполнения кампании.
type ProgressResponse struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// CampaignFromDomain конвертирует доменную кампанию в DTO.
func CampaignFromDomain(c *domain.Campaign) CampaignResponse {
	messages := make([]MessageSpecDTO, 0, len(c.Messages))
	for _, m := range c.Messages {
		messages = append(messages, MessageSpecDTO{
			Type: m.Type,
			Text: m.Text,
			File: m.File,
			PTT:  m.PTT,
		})
	}
	return CampaignResponse{
		ID:                 c.ID,
		TargetChatID:       c.TargetChatID,
		Messages:           messages,
		MinDelaySec:        c.MinDelaySec,
		MaxDelaySec:        c.MaxDelaySec,
		MinMessageDelaySec: c.MinMessageDelaySec,
		MaxMessageDelaySec: c.MaxMessageDelaySec,
		MinTypingSec:       c.MinTypingSec,
		MaxTypingSec:       c.MaxTypingSec,
		BlockAdmins:        c.BlockAdmins,
		Active:             c.Active,
		InstanceIDs:        c.Instances,
		CreatedAt:          c.CreatedAt,
	}
}

// JobResponse — DTO статуса отправки одному получателю.
type JobResponse struct {
	RecipientJID string  `json:"recipient_jid"`
	InstanceID   *string `json:"instance_id,omitempty"`
	Status       string  `json:"status"`
	Attempts     int     `json:"attempts"`
}

// JobFromDomain конвертирует доменный job в DTO. Статус выводится из
// флагов: терминальные sent/failed, иначе queued, пока job стоит в
// очереди instance, и pending, пока ждёт переназначения.
func JobFromDomain(j *domain.Job) JobResponse {
	resp := JobResponse{
		RecipientJID: j.RecipientJID,
		Attempts:     j.Attempts,
	}
	if j.InstanceID != nil {
		id := j.InstanceID.String()
		resp.InstanceID = &id
	}

	switch {
	case j.Sent:
		resp.Status = "sent"
	case j.Failed:
		resp.Status = "failed"
	case j.Live():
		resp.Status = "queued"
	default:
		resp.Status = "pending"
	}
	return resp
}

// ProgressFromDomain конвертирует сводку выполнения в DTO.
func ProgressFromDomain(p domain.Progress) ProgressResponse {
	return ProgressResponse{
		Sent:   p.Sent,
		Failed: p.Failed,
		Total:  p.Total,
	}
}
