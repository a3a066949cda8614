package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/evoo-agent/evoo/pkg/loop"
	"github.com/evoo-agent/evoo/pkg/models"
	"github.com/evoo-agent/evoo/pkg/version"
)

// defaultRunsLimit caps GET /api/v1/runs when no limit is given.
const defaultRunsLimit = 50

// StatusResponse mirrors the loop status plus learning aggregates.
type StatusResponse struct {
	State                loop.State             `json:"state"`
	RunsCompleted        int                    `json:"runs_completed"`
	MaxRuns              int                    `json:"max_runs"`
	AverageReward        float64                `json:"average_reward"`
	AverageRecoveryTime  float64                `json:"average_recovery_time"`
	RollingAverageReward float64                `json:"rolling_average_reward"`
	ImprovementTrend     []float64              `json:"improvement_trend"`
	LastRun              *models.RunObservation `json:"last_run,omitempty"`
}

// TriggerRequest is the body for POST /api/v1/control/trigger.
type TriggerRequest struct {
	IncidentType string `json:"incident_type" binding:"required"`
}

// health handles GET /health.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.GitCommit,
	})
}

// status handles GET /api/v1/status.
func (s *Server) status(c *gin.Context) {
	loopStatus := s.runner.Status()

	summary, err := s.experiences.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		State:                loopStatus.State,
		RunsCompleted:        loopStatus.RunsCompleted,
		MaxRuns:              loopStatus.MaxRuns,
		AverageReward:        summary.AverageReward,
		AverageRecoveryTime:  summary.AverageRecoveryTime,
		RollingAverageReward: summary.RollingAverageReward,
		ImprovementTrend:     summary.ImprovementTrend,
		LastRun:              loopStatus.LastRun,
	})
}

// listRuns handles GET /api/v1/runs. Supports ?incident_type= and
// ?limit=; results are most recent first.
func (s *Server) listRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	if raw := c.Query("incident_type"); raw != "" {
		incidentType := models.IncidentType(raw)
		if !incidentType.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown incident type: " + raw})
			return
		}
		experiences, err := s.experiences.QueryByIncident(c.Request.Context(), incidentType, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, experiences)
		return
	}

	all, err := s.experiences.All(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	recent := make([]models.Experience, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, all[i])
	}
	c.JSON(http.StatusOK, recent)
}

// summary handles GET /api/v1/summary.
func (s *Server) summary(c *gin.Context) {
	summary, err := s.experiences.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// rankings handles GET /api/v1/rankings/:incident_type.
func (s *Server) rankings(c *gin.Context) {
	raw := c.Param("incident_type")
	incidentType := models.IncidentType(raw)
	if !incidentType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown incident type: " + raw})
		return
	}

	records, err := s.strategies.Rankings(c.Request.Context(), incidentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"incident_type": incidentType,
		"rankings":      records,
	})
}

// guardrailRules handles GET /api/v1/guardrails.
func (s *Server) guardrailRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": s.guards.ActiveRules()})
}

// stop handles POST /api/v1/control/stop. The loop halts at its next
// phase boundary; a run in flight is abandoned.
func (s *Server) stop(c *gin.Context) {
	s.runner.RequestStop()
	s.logger.Info("stop requested via api")
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}

// trigger handles POST /api/v1/control/trigger.
func (s *Server) trigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	incidentType := models.IncidentType(req.IncidentType)
	if !incidentType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown incident type: " + req.IncidentType})
		return
	}

	observation, err := s.runner.Trigger(c.Request.Context(), incidentType)
	if err != nil {
		if errors.Is(err, loop.ErrLoopBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, observation)
}
