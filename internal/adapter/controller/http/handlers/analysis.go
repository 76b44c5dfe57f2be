package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/threatlens/threatlens/internal/entity"
	"github.com/threatlens/threatlens/internal/usecase/analysis"
)

// AnalysisHandler handles indicator analysis HTTP requests
type AnalysisHandler struct {
	service *analysis.Service
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(service *analysis.Service) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

// AnalyzeRequest is the analyze endpoint's request body
type AnalyzeRequest struct {
	IOC string `json:"ioc"`
}

// AnalyzeResponse wraps an analysis summary with request metadata
type AnalyzeResponse struct {
	AnalysisID string                `json:"analysisId"`
	IOC        string                `json:"ioc"`
	IocType    entity.IocType        `json:"iocType"`
	RiskScore  float64               `json:"riskScore"`
	Malicious  bool                  `json:"malicious"`
	Results    []entity.SourceResult `json:"results"`
	AnalyzedAt time.Time             `json:"analyzedAt"`
}

// Analyze runs a full multi-source analysis for one indicator
// POST /api/v1/analyze
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	summary, err := h.service.Analyze(r.Context(), req.IOC)
	if err != nil {
		if errors.Is(err, analysis.ErrEmptyIOC) {
			ErrorResponse(w, http.StatusBadRequest, "IOC value required", err)
			return
		}
		ErrorResponse(w, http.StatusInternalServerError, "Analysis failed", err)
		return
	}

	JSONResponse(w, http.StatusOK, AnalyzeResponse{
		AnalysisID: uuid.NewString(),
		IOC:        req.IOC,
		IocType:    summary.IocType,
		RiskScore:  summary.RiskScore,
		Malicious:  summary.Malicious,
		Results:    summary.Results,
		AnalyzedAt: time.Now().UTC(),
	})
}

// Classify returns the syntactic type of an indicator without querying any
// provider
// GET /api/v1/classify?value=...
func (h *AnalysisHandler) Classify(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("value")
	if value == "" {
		ErrorResponse(w, http.StatusBadRequest, "value parameter required", nil)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]any{
		"value":   value,
		"iocType": h.service.Classify(value),
	})
}

// Providers returns the status of every configured intelligence source
// GET /api/v1/providers
func (h *AnalysisHandler) Providers(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, map[string]any{
		"providers": h.service.Providers(),
	})
}

// CacheStats returns analysis cache statistics
// GET /api/v1/cache/stats
func (h *AnalysisHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, h.service.CacheStats())
}

// ClearCache drops every cached analysis
// POST /api/v1/cache/clear
func (h *AnalysisHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.service.ClearCache()
	SuccessResponse(w, "Cache cleared", nil)
}
