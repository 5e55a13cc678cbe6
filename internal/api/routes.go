package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Instances
	mux.Handle("GET /api/v1/instances", chain(http.HandlerFunc(h.ListInstances)))
	mux.Handle("POST /api/v1/instances", chain(http.HandlerFunc(h.CreateInstance)))
	mux.Handle("GET /api/v1/instances/{id}", chain(http.HandlerFunc(h.GetInstance)))
	mux.Handle("DELETE /api/v1/instances/{id}", chain(http.HandlerFunc(h.DeleteInstance)))
	mux.Handle("GET /api/v1/instances/{id}/groups", chain(http.HandlerFunc(h.ListInstanceGroups)))
	mux.Handle("GET /api/v1/instances/{id}/events", chain(http.HandlerFunc(h.StreamInstanceEvents)))

	// Media
	mux.Handle("POST /api/v1/media", chain(http.HandlerFunc(h.UploadMedia)))

	// Campaigns
	mux.Handle("GET /api/v1/campaigns", chain(http.HandlerFunc(h.ListCampaigns)))
	mux.Handle("POST /api/v1/campaigns", chain(http.HandlerFunc(h.CreateCampaign)))
	mux.Handle("GET /api/v1/campaigns/{id}", chain(http.HandlerFunc(h.GetCampaign)))
	mux.Handle("GET /api/v1/campaigns/{id}/jobs", chain(http.HandlerFunc(h.ListCampaignJobs)))
	mux.Handle("POST /api/v1/campaigns/{id}/start", chain(http.HandlerFunc(h.StartCampaign)))
	mux.Handle("POST /api/v1/campaigns/{id}/stop", chain(http.HandlerFunc(h.StopCampaign)))
	mux.Handle("DELETE /api/v1/campaigns/{id}", chain(http.HandlerFunc(h.DeleteCampaign)))
}
