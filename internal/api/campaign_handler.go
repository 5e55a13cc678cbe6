package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Fanline/internal/campaign"
	"github.com/shaiso/Fanline/internal/domain"
)

// ListCampaigns возвращает все кампании.
// GET /api/v1/campaigns
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.campaigns.List(r.Context())
	if HandleRepoError(w, h.logger, err, "campaigns not found") {
		return
	}

	resp := make([]CampaignResponse, 0, len(campaigns))
	for i := range campaigns {
		resp = append(resp, CampaignFromDomain(&campaigns[i]))
	}
	List(w, resp, len(resp))
}

// CreateCampaign создаёт кампанию и сразу запускает рассылку.
// POST /api/v1/campaigns
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	messages := make([]domain.MessageSpec, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, domain.MessageSpec{
			Type: m.Type,
			Text: m.Text,
			File: m.File,
			PTT:  m.PTT,
		})
	}

	c, err := h.campaigns.Create(r.Context(), campaign.CreateParams{
		TargetChatID:       req.TargetChatID,
		Messages:           messages,
		MinDelaySec:        req.MinDelaySec,
		MaxDelaySec:        req.MaxDelaySec,
		MinMessageDelaySec: req.MinMessageDelaySec,
		MaxMessageDelaySec: req.MaxMessageDelaySec,
		MinTypingSec:       req.MinTypingSec,
		MaxTypingSec:       req.MaxTypingSec,
		BlockAdmins:        req.BlockAdmins,
		InstanceIDs:        req.InstanceIDs,
	})
	if err != nil {
		h.handleCampaignError(w, err)
		return
	}

	Created(w, CampaignFromDomain(c))
}

// GetCampaign возвращает кампанию со сводкой выполнения.
// GET /api/v1/campaigns/{id}
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid campaign id")
		return
	}

	c, err := h.campaigns.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}

	progress, err := h.campaigns.Progress(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}

	resp := CampaignFromDomain(c)
	p := ProgressFromDomain(progress)
	resp.Progress = &p
	Success(w, resp)
}

// ListCampaignJobs возвращает статусы отправки по каждому получателю
// кампании.
// GET /api/v1/campaigns/{id}/jobs
func (h *Handler) ListCampaignJobs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid campaign id")
		return
	}

	jobs, err := h.campaigns.Jobs(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, JobFromDomain(&jobs[i]))
	}
	List(w, resp, len(resp))
}

// StartCampaign возобновляет остановленную кампанию. Тело запроса
// необязательно: непустой instance_ids заменяет набор instances
// кампании перед раздачей.
// POST /api/v1/campaigns/{id}/start
func (h *Handler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid campaign id")
		return
	}

	var req StartCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.campaigns.Start(r.Context(), id, req.InstanceIDs); err != nil {
		h.handleCampaignError(w, err)
		return
	}
	NoContent(w)
}

// StopCampaign останавливает кампанию.
// POST /api/v1/campaigns/{id}/stop
func (h *Handler) StopCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid campaign id")
		return
	}

	if err := h.campaigns.Stop(r.Context(), id); err != nil {
		h.handleCampaignError(w, err)
		return
	}
	NoContent(w)
}

// DeleteCampaign останавливает кампанию и удаляет её вместе с jobs.
// DELETE /api/v1/campaigns/{id}
func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid campaign id")
		return
	}

	if err := h.campaigns.Delete(r.Context(), id); err != nil {
		h.handleCampaignError(w, err)
		return
	}
	NoContent(w)
}

// handleCampaignError преобразует ошибку сервиса кампаний в HTTP ответ.
func (h *Handler) handleCampaignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNoInstances),
		errors.Is(err, campaign.ErrNoMessages),
		errors.Is(err, campaign.ErrBadDelays),
		errors.Is(err, campaign.ErrNoRecipients):
		BadRequest(w, err.Error())
	case errors.Is(err, campaign.ErrActive),
		errors.Is(err, campaign.ErrNotActive),
		errors.Is(err, campaign.ErrInstanceUnavailable):
		InvalidState(w, err.Error())
	default:
		HandleRepoError(w, h.logger, err, "campaign not found")
	}
}
