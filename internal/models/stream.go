package models

import "time"

// WorkerState is the lifecycle state of a stream worker
type WorkerState string

const (
	WorkerStateUninitialized  WorkerState = "uninitialized"
	WorkerStateCapturing      WorkerState = "capturing"
	WorkerStateDetecting      WorkerState = "detecting"
	WorkerStateTracking       WorkerState = "tracking"
	WorkerStateCounting       WorkerState = "counting"
	WorkerStateReinitializing WorkerState = "reinitializing"
	WorkerStateClosed         WorkerState = "closed"
)

// String returns the string representation of WorkerState
func (s WorkerState) String() string {
	return string(s)
}

// IsTerminal reports whether no further ticks will run in this state
func (s WorkerState) IsTerminal() bool {
	return s == WorkerStateClosed
}

// StreamStatus is a read-only snapshot of one source, served by the status API
type StreamStatus struct {
	HiveID        string      `json:"hive_id"`
	ApiaryID      string      `json:"apiary_id"`
	Algo          string      `json:"algo"`
	BeesIn        int         `json:"bees_in"`
	BeesOut       int         `json:"bees_out"`
	FPS           float64     `json:"fps"`
	State         WorkerState `json:"state"`
	Ticks         int64       `json:"ticks"`
	Timeouts      int64       `json:"timeouts"`
	ActiveTracks  int         `json:"active_tracks"`
	LastTick      *time.Time  `json:"last_tick,omitempty"`
	LastPublish   *time.Time  `json:"last_publish,omitempty"`
	LastPublishOK bool        `json:"last_publish_ok"`
}
