package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/yokitheyo/pagesmith/internal/model"
	"github.com/yokitheyo/pagesmith/internal/taskmgr"
)

type Intake interface {
	Submit(req model.ProjectRequest) (taskmgr.Accepted, error)
	GetTask(taskID string) (model.Record, error)
}

type APIHandler struct {
	TM     Intake
	Logger zerolog.Logger
}

type statusResponse struct {
	TaskID string `json:"task_id"`
	model.Record
}

func RegisterHandlers(r *gin.Engine, tm Intake, logger zerolog.Logger) {
	h := &APIHandler{TM: tm, Logger: logger}

	r.GET("/", h.health)
	r.POST("/create-project", h.createProject)
	r.GET("/tasks/:id/status", h.getStatus)
	r.POST("/evaluate", h.evaluate)
}

func (h *APIHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Service is running"})
}

func (h *APIHandler) createProject(c *gin.Context) {
	var req model.ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	acc, err := h.TM.Submit(req)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, acc)
	case errors.Is(err, taskmgr.ErrAuth):
		c.JSON(http.StatusForbidden, gin.H{"detail": "Invalid secret"})
	case errors.Is(err, taskmgr.ErrInvalidRound), errors.Is(err, taskmgr.ErrInvalidEvalURL):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	case errors.Is(err, taskmgr.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": taskmgr.ErrQueueFull.Error()})
	case errors.Is(err, taskmgr.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": taskmgr.ErrShuttingDown.Error()})
	default:
		h.Logger.Error().Err(err).Msg("create project failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
	}
}

func (h *APIHandler) getStatus(c *gin.Context) {
	taskID := c.Param("id")

	rec, err := h.TM.GetTask(taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, statusResponse{TaskID: taskID, Record: rec})
}

// evaluate is a local stand-in for the evaluation endpoint.
func (h *APIHandler) evaluate(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	h.Logger.Info().Interface("payload", body).Msg("evaluation received")
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
