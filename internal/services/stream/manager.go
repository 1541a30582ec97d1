package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"beecount-worker-go/internal/config"
	"beecount-worker-go/internal/models"
	"beecount-worker-go/internal/services/journal"
	"beecount-worker-go/internal/services/publisher"
)

// Journal records publish attempts
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// CPUSampler reports host CPU utilisation in percent
type CPUSampler interface {
	Percent() float64
}

// ManagerConfig holds the scheduling and publishing cadence
type ManagerConfig struct {
	TickInterval     time.Duration // pause between ticks
	TickTimeout      time.Duration // bounded wait for the steps of one tick
	PublishPeriod    time.Duration
	PublishTimeout   time.Duration
	QoS              byte
	FlushOnShutdown  bool
	JournalRetention time.Duration
}

// ManagerConfigFrom maps process configuration onto the manager
func ManagerConfigFrom(cfg *config.Config) ManagerConfig {
	// Clamp before narrowing so 258 does not wrap to 2
	qos := cfg.PublishQoS
	if qos < 0 || qos > 2 {
		qos = 1
	}

	return ManagerConfig{
		TickInterval:     cfg.TickInterval,
		TickTimeout:      cfg.TickTimeout,
		PublishPeriod:    cfg.PublishPeriod,
		PublishTimeout:   cfg.PublishTimeout,
		QoS:              byte(qos),
		FlushOnShutdown:  cfg.FlushOnShutdown,
		JournalRetention: cfg.JournalRetention,
	}
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.TickTimeout <= 0 {
		c.TickTimeout = 5 * time.Second
	}
	if c.PublishPeriod <= 0 {
		c.PublishPeriod = 60 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
	if c.QoS > 2 {
		c.QoS = 1
	}
	return c
}

// slot is the Manager's view of one worker
type slot struct {
	worker   *Worker
	apiaryID string

	// Guarded by Manager.mu
	metrics       models.StreamMetrics
	ticks         int64
	timeouts      int64
	lastTick      time.Time
	lastPublish   time.Time
	lastPublishOK bool

	// Owned by the goroutine driving ticks
	pending    bool
	launchedAt uint64
}

// Manager fans each tick out to every worker, merges their deltas into the
// metrics table and publishes the table once per period. The table is only
// written from the goroutine running Run.
type Manager struct {
	cfg       ManagerConfig
	publisher publisher.Publisher
	cpu       CPUSampler
	journal   Journal
	logger    zerolog.Logger
	now       func() time.Time

	order   []string
	slots   map[string]*slot
	results chan StepResult
	tickSeq uint64

	mu          sync.RWMutex
	periodStart time.Time
	lastPublish time.Time

	stepCtx      context.Context
	cancelSteps  context.CancelFunc
	running      atomic.Bool
	stopping     atomic.Bool
	shutdownOnce sync.Once
	done         chan struct{}
}

// ManagerOption customises a Manager
type ManagerOption func(*Manager)

func WithJournal(j Journal) ManagerOption {
	return func(m *Manager) { m.journal = j }
}

func WithCPUSampler(s CPUSampler) ManagerOption {
	return func(m *Manager) { m.cpu = s }
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager takes ownership of the workers. Hive ids must be unique.
func NewManager(cfg ManagerConfig, pub publisher.Publisher, workers []*Worker, opts ...ManagerOption) (*Manager, error) {
	stepCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:         cfg.withDefaults(),
		publisher:   pub,
		logger:      log.Logger,
		now:         time.Now,
		slots:       make(map[string]*slot, len(workers)),
		results:     make(chan StepResult, len(workers)),
		stepCtx:     stepCtx,
		cancelSteps: cancel,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, w := range workers {
		id := w.HiveID()
		if _, dup := m.slots[id]; dup {
			cancel()
			return nil, fmt.Errorf("duplicate stream %s", id)
		}
		m.slots[id] = &slot{
			worker:   w,
			apiaryID: w.Config().ApiaryID,
			metrics:  models.StreamMetrics{Algo: w.Algo()},
		}
		m.order = append(m.order, id)
	}

	m.logger.Info().
		Int("streams", len(m.order)).
		Dur("tick_timeout", m.cfg.TickTimeout).
		Dur("publish_period", m.cfg.PublishPeriod).
		Uint8("qos", m.cfg.QoS).
		Msg("Stream manager initialized")

	return m, nil
}

// metrics returns the accumulated metrics for one source
func (m *Manager) metrics(hiveID string) (models.StreamMetrics, bool) {
	s, ok := m.slots[hiveID]
	if !ok {
		return models.StreamMetrics{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return s.metrics, true
}

// Streams returns a snapshot of every source
func (m *Manager) Streams() []models.StreamStatus {
	out := make([]models.StreamStatus, 0, len(m.order))
	for _, id := range m.order {
		st, _ := m.Stream(id)
		out = append(out, st)
	}
	return out
}

// Stream returns a snapshot of one source
func (m *Manager) Stream(hiveID string) (models.StreamStatus, bool) {
	s, ok := m.slots[hiveID]
	if !ok {
		return models.StreamStatus{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	st := models.StreamStatus{
		HiveID:        hiveID,
		ApiaryID:      s.apiaryID,
		Algo:          s.metrics.Algo,
		BeesIn:        s.metrics.BeesIn,
		BeesOut:       s.metrics.BeesOut,
		FPS:           models.RoundTenth(s.metrics.FPS),
		State:         s.worker.State(),
		Ticks:         s.ticks,
		Timeouts:      s.timeouts,
		ActiveTracks:  s.worker.ActiveTracks(),
		LastPublishOK: s.lastPublishOK,
	}
	if !s.lastTick.IsZero() {
		t := s.lastTick
		st.LastTick = &t
	}
	if !s.lastPublish.IsZero() {
		t := s.lastPublish
		st.LastPublish = &t
	}
	return st, true
}

// LastPublish returns the time of the most recent successful publish
func (m *Manager) LastPublish() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPublish, !m.lastPublish.IsZero()
}

// PublisherConnected reports the transport's connection state
func (m *Manager) PublisherConnected() bool {
	return m.publisher != nil && m.publisher.IsConnected()
}
