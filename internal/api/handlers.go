package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"decision-copilot/internal/models"
	"decision-copilot/internal/services"

	"github.com/gin-gonic/gin"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	decisionService *services.DecisionService
	exportService   *services.ExportService
}

// NewHandlers creates a new handlers instance
func NewHandlers(decisionService *services.DecisionService, exportService *services.ExportService) *Handlers {
	return &Handlers{
		decisionService: decisionService,
		exportService:   exportService,
	}
}

// CreateDecisionHandler handles POST /api/decisions
func (h *Handlers) CreateDecisionHandler(c *gin.Context) {
	var req models.CreateDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, err := h.decisionService.CreateDecision(c.Request.Context(), req.Question, req.Context, req.NotifyEmail)
	if err != nil {
		if errors.Is(err, services.ErrEmptyQuestion) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err, "failed to create decision")
		return
	}

	c.JSON(http.StatusCreated, models.CreateDecisionResponse{
		DecisionID: decision.ID,
		Status:     decision.Status,
	})
}

// ListDecisionsHandler handles GET /api/decisions?status=&limit=
func (h *Handlers) ListDecisionsHandler(c *gin.Context) {
	status := models.DecisionStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid status: %s", status)})
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	decisions, err := h.decisionService.ListDecisions(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err, "failed to list decisions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

// GetDecisionHandler handles GET /api/decisions/:id
func (h *Handlers) GetDecisionHandler(c *gin.Context) {
	snapshot, err := h.decisionService.GetStatusSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load decision")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// DeleteDecisionHandler handles DELETE /api/decisions/:id
func (h *Handlers) DeleteDecisionHandler(c *gin.Context) {
	if err := h.decisionService.DeleteDecision(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "failed to delete decision")
		return
	}
	c.Status(http.StatusNoContent)
}

// StartRunHandler handles POST /api/decisions/:id/runs
func (h *Handlers) StartRunHandler(c *gin.Context) {
	var req models.StartRunRequest
	// The body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.decisionService.StartRun(c.Request.Context(), c.Param("id"), req.Mode)
	if err != nil {
		respondError(c, err, "failed to start run")
		return
	}

	c.JSON(http.StatusAccepted, models.StartRunResponse{
		DecisionID: run.DecisionID,
		RunID:      run.ID,
		Status:     run.Status,
	})
}

// GetReportHandler handles GET /api/decisions/:id/report
func (h *Handlers) GetReportHandler(c *gin.Context) {
	report, err := h.decisionService.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load report")
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExplainHandler handles GET /api/decisions/:id/explain
func (h *Handlers) ExplainHandler(c *gin.Context) {
	explanation, err := h.decisionService.Explain(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to explain decision")
		return
	}
	c.JSON(http.StatusOK, explanation)
}

// ExportHandler handles GET /api/decisions/:id/export?format=markdown|pdf
func (h *Handlers) ExportHandler(c *gin.Context) {
	id := c.Param("id")

	switch format := c.DefaultQuery("format", "markdown"); format {
	case "markdown", "md":
		md, err := h.exportService.Markdown(c.Request.Context(), id)
		if err != nil {
			respondError(c, err, "failed to export decision")
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
	case "pdf":
		pdfData, err := h.exportService.PDF(c.Request.Context(), id)
		if err != nil {
			respondError(c, err, "failed to export decision")
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="decision-%s.pdf"`, id))
		c.Data(http.StatusOK, "application/pdf", pdfData)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format: %s", format)})
	}
}

// respondError maps missing resources to 404 and everything else to 500
func respondError(c *gin.Context, err error, message string) {
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	log.Printf("ERROR: %s: %v", message, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
