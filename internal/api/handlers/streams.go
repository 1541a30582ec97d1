package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"beecount-worker-go/internal/logging"
	"beecount-worker-go/internal/models"
	"beecount-worker-go/internal/services/journal"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// HistorySource returns recent publish attempts for a hive
type HistorySource interface {
	Recent(ctx context.Context, hiveID string, limit int) ([]journal.Entry, error)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StreamsResponse struct {
	Streams []models.StreamStatus `json:"streams"`
	Count   int                   `json:"count"`
}

type HistoryResponse struct {
	HiveID  string          `json:"hive_id"`
	Entries []journal.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// StreamsHandler serves per-stream snapshots. It never mutates counters.
type StreamsHandler struct {
	status  StatusSource
	history HistorySource
}

func NewStreamsHandler(status StatusSource, history HistorySource) *StreamsHandler {
	return &StreamsHandler{status: status, history: history}
}

func (h *StreamsHandler) ListStreams(c *gin.Context) {
	streams := h.status.Streams()
	c.JSON(http.StatusOK, StreamsResponse{Streams: streams, Count: len(streams)})
}

func (h *StreamsHandler) GetStream(c *gin.Context) {
	hiveID := c.Param("hive_id")
	logging.BindHive(c, hiveID)

	st, ok := h.status.Stream(hiveID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "stream not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *StreamsHandler) GetHistory(c *gin.Context) {
	hiveID := c.Param("hive_id")
	logging.BindHive(c, hiveID)

	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "publish journal disabled"})
		return
	}
	if _, ok := h.status.Stream(hiveID); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "stream not found"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	entries, err := h.history.Recent(c.Request.Context(), hiveID, limit)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to read publish journal")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read publish journal"})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	c.JSON(http.StatusOK, HistoryResponse{HiveID: hiveID, Entries: entries, Count: len(entries)})
}
