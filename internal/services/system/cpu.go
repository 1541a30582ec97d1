// Package system samples host resource usage for telemetry and status reports.
package system

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// Sampler reads CPU utilisation. Reads have no side effects beyond gopsutil's
// own bookkeeping of the previous sample.
type Sampler struct {
	mu      sync.Mutex
	proc    *process.Process
	percent func() ([]float64, error)
}

func NewSampler() *Sampler {
	s := &Sampler{
		percent: func() ([]float64, error) {
			// Zero interval compares against the previous call instead of blocking
			return cpu.Percent(0, false)
		},
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	} else {
		log.Warn().Err(err).Msg("Process metrics unavailable")
	}

	// Prime the baseline so the first real read is meaningful
	_, _ = s.percent()

	return s
}

// Percent returns host-wide CPU utilisation since the previous call, or 0
// when it cannot be read
func (s *Sampler) Percent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.percent()
	if err != nil || len(values) == 0 {
		if err != nil {
			log.Debug().Err(err).Msg("CPU sample failed")
		}
		return 0
	}
	return values[0]
}

// ProcessStats describes this process
type ProcessStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	RSSBytes      uint64  `json:"rss_bytes"`
	Threads       int32   `json:"threads"`
}

// Process returns resource usage of the worker process itself
func (s *Sampler) Process() ProcessStats {
	var stats ProcessStats
	if s.proc == nil {
		return stats
	}

	if v, err := s.proc.CPUPercent(); err == nil {
		stats.CPUPercent = v
	}
	if v, err := s.proc.MemoryPercent(); err == nil {
		stats.MemoryPercent = float64(v)
	}
	if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	if v, err := s.proc.NumThreads(); err == nil {
		stats.Threads = v
	}
	return stats
}
