package handler

import (
	"loankyc/internal/kyc/models"
	"loankyc/internal/workflow"
)

// RecordResponse is the record plus the client-facing correction cues.
type RecordResponse struct {
	*models.ClientKycRecord
	Cues *workflow.Cues `json:"cues,omitempty"`
}

func toRecordResponse(rec *models.ClientKycRecord) RecordResponse {
	resp := RecordResponse{ClientKycRecord: rec}
	if rec.HasPendingCorrections() {
		cues := rec.Cues()
		resp.Cues = &cues
	}
	return resp
}

type StatusResponse struct {
	ClientID string        `json:"clientId"`
	Status   models.Status `json:"status"`
}

type HistoryResponse struct {
	ClientID string                `json:"clientId"`
	Events   []models.HistoryEvent `json:"events"`
}

type QueueResponse struct {
	Records []*models.ClientKycRecord `json:"records"`
	Total   int                       `json:"total"`
}
