package api

import (
	"net/http"

	"github.com/google/uuid"
)

// ListInstances возвращает все instances.
// GET /api/v1/instances
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.instanceRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "instances not found") {
		return
	}

	resp := make([]InstanceResponse, 0, len(instances))
	for i := range instances {
		resp = append(resp, InstanceFromDomain(&instances[i], h.connected(instances[i].ID)))
	}
	List(w, resp, len(resp))
}

// CreateInstance регистрирует новый instance и запускает пейринг.
// QR-коды приходят по WebSocket /api/v1/instances/{id}/events.
// POST /api/v1/instances
func (h *Handler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.supervisor.CreateInstance(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, InstanceFromDomain(inst, h.connected(inst.ID)))
}

// GetInstance возвращает instance по ID.
// GET /api/v1/instances/{id}
func (h *Handler) GetInstance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid instance id")
		return
	}

	inst, err := h.instanceRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "instance not found") {
		return
	}

	Success(w, InstanceFromDomain(inst, h.connected(inst.ID)))
}

// DeleteInstance удаляет instance.
// Возвращает 409, если instance закреплён за кампанией.
// DELETE /api/v1/instances/{id}
func (h *Handler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid instance id")
		return
	}

	err = h.supervisor.DeleteInstance(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "instance not found") {
		return
	}

	NoContent(w)
}

// ListInstanceGroups возвращает групповые чаты аккаунта instance.
// GET /api/v1/instances/{id}/groups
func (h *Handler) ListInstanceGroups(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid instance id")
		return
	}

	if _, err := h.instanceRepo.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "instance not found") {
		return
	}

	session, ok := h.sessions.Get(id)
	if !ok || !session.Connected() {
		InvalidState(w, "instance is not connected")
		return
	}

	groups, err := session.Groups(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	resp := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		resp = append(resp, GroupFromGateway(g))
	}
	List(w, resp, len(resp))
}

// connected сообщает, подключена ли живая сессия instance.
func (h *Handler) connected(id uuid.UUID) bool {
	session, ok := h.sessions.Get(id)
	return ok && session.Connected()
}
