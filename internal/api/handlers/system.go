package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"beecount-worker-go/internal/services/publisher"
	"beecount-worker-go/internal/services/system"
)

// SystemSource samples host and process usage
type SystemSource interface {
	Percent() float64
	Process() system.ProcessStats
}

// PublisherStatsSource reports per-topic delivery counters
type PublisherStatsSource interface {
	Stats() publisher.Stats
}

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID  string
	sampler   SystemSource
	publisher PublisherStatsSource
	started   time.Time
}

// NewSystemHandler creates a new system handler. Either source may be nil.
func NewSystemHandler(workerID string, sampler SystemSource, pub PublisherStatsSource) *SystemHandler {
	return &SystemHandler{
		WorkerID:  workerID,
		sampler:   sampler,
		publisher: pub,
		started:   time.Now(),
	}
}

func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := gin.H{
		"worker_id":  h.WorkerID,
		"uptime_s":   int64(time.Since(h.started).Seconds()),
		"memory_mb":  m.Alloc / 1024 / 1024,
		"cpu_cores":  runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
	}
	if h.sampler != nil {
		stats["cpu_pct"] = h.sampler.Percent()
		stats["process"] = h.sampler.Process()
	}
	if h.publisher != nil {
		stats["publisher"] = h.publisher.Stats()
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"stats":     stats,
		"timestamp": time.Now().Unix(),
	})
}
