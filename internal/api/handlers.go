package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tabula/internal/models"
	"tabula/internal/orchestrator"
	"tabula/pkg/logger"
)

// defaultUserID is used when the caller does not identify a user.
const defaultUserID = "default"

// HealthCheck probes one backing dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// API provides the HTTP handlers.
type API struct {
	orchestrator *orchestrator.Orchestrator
	checks       []HealthCheck
	logger       *logger.Logger
}

// NewAPI creates the API handler set.
func NewAPI(orch *orchestrator.Orchestrator, checks []HealthCheck, log *logger.Logger) *API {
	return &API{
		orchestrator: orch,
		checks:       checks,
		logger:       log,
	}
}

// TextHandler handles POST /text: one user message in, one agent reply out.
func (a *API) TextHandler(c *gin.Context) {
	var payload models.TextRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error(), StatusCode: http.StatusBadRequest}).
			Warn("invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "text and uid are required"})
		return
	}

	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = defaultUserID
	}

	resp, err := a.orchestrator.HandleText(c.Request.Context(), userID, &payload)
	if err != nil {
		if errors.Is(err, models.ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "knowledge store unavailable"})
			return
		}
		a.logger.WithError(models.ErrorInfo{Message: err.Error(), StatusCode: http.StatusInternalServerError}).
			Error("failed to process message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		return
	}

	if resp.References == nil {
		resp.References = []models.FactRecord{}
	}
	c.JSON(http.StatusOK, resp)
}

// HealthHandler reports the health of every backing dependency.
func (a *API) HealthHandler(c *gin.Context) {
	status := http.StatusOK
	details := gin.H{}

	for _, check := range a.checks {
		if err := check.Check(c.Request.Context()); err != nil {
			details[check.Name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			details[check.Name] = "ok"
		}
	}

	c.JSON(status, gin.H{"status": http.StatusText(status), "dependencies": details})
}
