// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/callforge/dialer-backend/internal/errors"
	"github.com/callforge/dialer-backend/internal/service"
)

type CampaignController struct {
	Runner *service.RunnerService
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var params service.CreateCampaignParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if params.Name == "" || params.SourceType == "" || params.SourceLocator == "" {
		http.Error(w, "name, source_type and source_locator are required", http.StatusBadRequest)
		return
	}

	campaign, err := c.Runner.CreateCampaign(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	campaigns, total, err := c.Runner.Campaigns.ListCampaigns((page-1)*pageSize, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": campaigns,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
			"total_pages": totalPages,
		},
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.Runner.Campaigns.GetByID(campaignID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) RunCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.Runner.RunCampaign(r.Context(), campaignID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.Runner.PauseCampaign(r.Context(), campaignID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.Runner.ResumeCampaign(r.Context(), campaignID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) GetCampaignStatus(w http.ResponseWriter, r *http.Request) {
	status, err := c.Runner.GetStatus(r.Context(), campaignID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(status)
}

func campaignID(r *http.Request) int {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	return id
}

func writeError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	var invalid *appErrors.ErrInvalidTransition
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &invalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
