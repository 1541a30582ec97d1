package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"beecount-worker-go/internal/models"
)

// StatusSource is the read-only view of the stream manager
type StatusSource interface {
	Streams() []models.StreamStatus
	Stream(hiveID string) (models.StreamStatus, bool)
	LastPublish() (time.Time, bool)
	PublisherConnected() bool
}

type HealthHandler struct {
	WorkerID string
	Version  string
	status   StatusSource
}

func NewHealthHandler(workerID, version string, status StatusSource) *HealthHandler {
	return &HealthHandler{WorkerID: workerID, Version: version, status: status}
}

type HealthResponse struct {
	Status             string  `json:"status"`
	WorkerID           string  `json:"worker_id"`
	Streams            int     `json:"streams"`
	LastPublish        *string `json:"last_publish"`
	PublisherConnected bool    `json:"publisher_connected"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id"`
	Status       string   `json:"status"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// HealthCheck reports liveness. The worker is healthy while it runs, even
// when the broker is unreachable; publisher_connected tells those apart.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:             "healthy",
		WorkerID:           h.WorkerID,
		Streams:            len(h.status.Streams()),
		PublisherConnected: h.status.PublisherConnected(),
	}
	if t, ok := h.status.LastPublish(); ok {
		s := t.UTC().Format(time.RFC3339)
		resp.LastPublish = &s
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Capabilities: []string{
			"bee_counting",
			"multi_stream",
			"mqtt_telemetry",
		},
	})
}
