package models

import (
	"math"
	"time"
)

// StreamMetrics are the accumulated counters for one source since its last
// successful publish
type StreamMetrics struct {
	BeesIn  int     `json:"bees_in"`
	BeesOut int     `json:"bees_out"`
	FPS     float64 `json:"fps"`
	Algo    string  `json:"algo"`
}

// MetricsDelta is what a single worker step contributes to StreamMetrics
type MetricsDelta struct {
	In     int
	Out    int
	FPS    float64
	HasFPS bool
}

// Empty reports whether the delta carries no counts and no fps sample
func (d MetricsDelta) Empty() bool {
	return d.In == 0 && d.Out == 0 && !d.HasFPS
}

// Apply merges a delta into the metrics. Counts add up; fps is replaced by the
// most recent estimate.
func (m *StreamMetrics) Apply(d MetricsDelta) {
	m.BeesIn += d.In
	m.BeesOut += d.Out
	if d.HasFPS {
		m.FPS = d.FPS
	}
}

// ResetCounts zeroes the directional counters and keeps fps and algo
func (m *StreamMetrics) ResetCounts() {
	m.BeesIn = 0
	m.BeesOut = 0
}

// Net returns in minus out
func (m StreamMetrics) Net() int {
	return m.BeesIn - m.BeesOut
}

// Telemetry is the record published once per source per publish period
type Telemetry struct {
	Timestamp string  `json:"ts"`
	ApiaryID  string  `json:"apiary_id"`
	HiveID    string  `json:"hive_id"`
	BeesIn    int     `json:"bees_in_1m"`
	BeesOut   int     `json:"bees_out_1m"`
	BeesNet   int     `json:"bees_net_1m"`
	FPS       float64 `json:"fps"`
	CPUPct    float64 `json:"cpu_pct"`
	Algo      string  `json:"algo"`
}

// NewTelemetry builds the publish record for one source
func NewTelemetry(hiveID, apiaryID string, m StreamMetrics, cpuPct float64, now time.Time) Telemetry {
	return Telemetry{
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		ApiaryID:  apiaryID,
		HiveID:    hiveID,
		BeesIn:    m.BeesIn,
		BeesOut:   m.BeesOut,
		BeesNet:   m.Net(),
		FPS:       RoundTenth(m.FPS),
		CPUPct:    RoundTenth(cpuPct),
		Algo:      m.Algo,
	}
}

// RoundTenth rounds to one decimal place
func RoundTenth(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10) / 10
}
