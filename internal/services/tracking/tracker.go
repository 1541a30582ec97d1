// Package tracking associates per-frame centroids into persistent track identities.
package tracking

import (
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"beecount-worker-go/internal/models"
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	MaxDisappeared int     // Consecutive unmatched updates tolerated before removal
	MaxDistance    float64 // Largest centroid jump accepted as the same object (pixels)
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxDisappeared: 20,
		MaxDistance:    40,
	}
}

// Track is a persistent identity for one object seen across frames.
type Track struct {
	ID          int          `json:"id"`
	Position    models.Point `json:"position"`
	Disappeared int          `json:"disappeared"`
	LastSeen    time.Time    `json:"last_seen"`
}

// Tracker maps detections to tracks using greedy nearest-neighbour association.
// Tracks live in an arena keyed by ID; order keeps IDs in allocation order so
// iteration never depends on map ordering. Not safe for concurrent use: each
// stream owns exactly one Tracker.
type Tracker struct {
	config  TrackerConfig
	tracks  map[int]*Track
	order   []int
	nextID  int
	removed []int
	now     func() time.Time
}

// Option customises a Tracker
type Option func(*Tracker)

// WithClock overrides the time source used for LastSeen
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker with no tracks. The first allocated ID is 0.
func NewTracker(config TrackerConfig, opts ...Option) *Tracker {
	t := &Tracker{
		config: config,
		tracks: make(map[int]*Track),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// candidate is one admissible (track, detection) pairing
type candidate struct {
	dist float64
	row  int // index into order
	col  int // index into detections
}

// Update consumes the centroids detected in one frame and returns the active
// tracks in ID order. IDs removed during this call are available from Removed.
func (t *Tracker) Update(detections []models.Point) []Track {
	t.removed = t.removed[:0]
	now := t.now()

	if len(t.order) == 0 {
		for _, d := range detections {
			t.register(d, now)
		}
		return t.Tracks()
	}

	if len(detections) == 0 {
		for _, id := range slices.Clone(t.order) {
			t.markMissing(id)
		}
		return t.Tracks()
	}

	matchedRows := make([]bool, len(t.order))
	matchedCols := make([]bool, len(detections))

	for _, c := range t.candidates(detections) {
		if matchedRows[c.row] || matchedCols[c.col] {
			continue
		}
		matchedRows[c.row] = true
		matchedCols[c.col] = true

		track := t.tracks[t.order[c.row]]
		track.Position = detections[c.col]
		track.Disappeared = 0
		track.LastSeen = now
	}

	// Rows are resolved before removal so indices stay valid
	var missing []int
	for row, id := range t.order {
		if !matchedRows[row] {
			missing = append(missing, id)
		}
	}
	for _, id := range missing {
		t.markMissing(id)
	}

	for col, d := range detections {
		if !matchedCols[col] {
			t.register(d, now)
		}
	}

	return t.Tracks()
}

// candidates returns every pairing within MaxDistance, nearest first.
// Ties break on track order then detection order.
func (t *Tracker) candidates(detections []models.Point) []candidate {
	pairs := make([]candidate, 0, len(t.order)*len(detections))
	for row, id := range t.order {
		p := t.tracks[id].Position
		for col, d := range detections {
			dist := floats.Distance([]float64{p.X, p.Y}, []float64{d.X, d.Y}, 2)
			// NaN distances fail this check too
			if !(dist <= t.config.MaxDistance) {
				continue
			}
			pairs = append(pairs, candidate{dist: dist, row: row, col: col})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.row != b.row {
			return a.row < b.row
		}
		return a.col < b.col
	})
	return pairs
}

func (t *Tracker) register(p models.Point, now time.Time) {
	id := t.nextID
	t.nextID++

	t.tracks[id] = &Track{ID: id, Position: p, LastSeen: now}
	t.order = append(t.order, id)
}

func (t *Tracker) markMissing(id int) {
	track := t.tracks[id]
	track.Disappeared++
	if track.Disappeared > t.config.MaxDisappeared {
		t.deregister(id)
	}
}

func (t *Tracker) deregister(id int) {
	delete(t.tracks, id)
	t.order = slices.DeleteFunc(t.order, func(v int) bool { return v == id })
	t.removed = append(t.removed, id)
}

// Tracks returns a copy of the active tracks in ID order
func (t *Tracker) Tracks() []Track {
	out := make([]Track, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tracks[id])
	}
	return out
}

// Positions returns the active tracks as an ID to position mapping
func (t *Tracker) Positions() map[int]models.Point {
	out := make(map[int]models.Point, len(t.order))
	for _, id := range t.order {
		out[id] = t.tracks[id].Position
	}
	return out
}

// Removed returns the IDs deregistered by the most recent Update
func (t *Tracker) Removed() []int {
	return slices.Clone(t.removed)
}
