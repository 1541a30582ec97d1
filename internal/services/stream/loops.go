package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"beecount-worker-go/internal/models"
	"beecount-worker-go/internal/services/journal"
	"beecount-worker-go/internal/services/publisher"
)

// Run drives ticks until ctx is cancelled, then shuts down: in-flight steps
// are drained under the tick timeout, an optional final publish is made and
// every worker is released exactly once. Cancellation is observed between ticks.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("stream manager already running")
	}
	defer close(m.done)
	defer m.shutdown()

	m.mu.Lock()
	m.periodStart = m.now()
	m.mu.Unlock()

	m.logger.Info().Msg("Stream manager started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		m.tick()
		m.publishIfDue()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.cfg.TickInterval):
		}
	}
}

// tick launches a step for every idle worker and waits, at most TickTimeout,
// for the steps launched by this tick. A worker whose earlier step is still
// running is skipped; its result is merged whenever it arrives.
func (m *Manager) tick() {
	m.tickSeq++
	m.collectReady()

	launched := 0
	for _, id := range m.order {
		s := m.slots[id]
		if s.pending {
			m.logger.Debug().Str("hive_id", id).Msg("Previous step still running, skipping tick")
			continue
		}
		s.pending = true
		s.launchedAt = m.tickSeq
		launched++
		go m.runStep(s)
	}
	if launched == 0 {
		return
	}

	timer := time.NewTimer(m.cfg.TickTimeout)
	defer timer.Stop()

	for launched > 0 {
		select {
		case res := <-m.results:
			if s := m.merge(res); s != nil && s.launchedAt == m.tickSeq {
				launched--
			}
		case <-timer.C:
			m.markTimeouts()
			return
		}
	}
}

// runStep executes one worker step off the tick goroutine and reports back
// over the results channel
func (m *Manager) runStep(s *slot) {
	res := StepResult{HiveID: s.worker.HiveID()}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Str("hive_id", res.HiveID).
				Interface("panic", r).
				Msg("Stream step panic recovered")
			res.Err = fmt.Errorf("step panicked: %v", r)
			res.Finished = m.now()
		}

		m.results <- res

		// Shutdown could not wait for this step; release now that it returned
		if m.stopping.Load() {
			m.releaseWorker(s)
		}
	}()

	res = s.worker.Step(m.stepCtx)
}

// collectReady merges every result already waiting without blocking
func (m *Manager) collectReady() {
	for {
		select {
		case res := <-m.results:
			m.merge(res)
		default:
			return
		}
	}
}

// merge folds one step result into the metrics table. It is the only writer
// of slot metrics besides the post-publish reset.
func (m *Manager) merge(res StepResult) *slot {
	s, ok := m.slots[res.HiveID]
	if !ok {
		return nil
	}
	s.pending = false

	m.mu.Lock()
	s.metrics.Apply(res.Delta)
	s.ticks++
	if !res.Finished.IsZero() {
		s.lastTick = res.Finished
	}
	m.mu.Unlock()

	if res.Err != nil {
		m.logger.Debug().Err(res.Err).Str("hive_id", res.HiveID).Msg("Stream step degraded")
	}
	return s
}

func (m *Manager) markTimeouts() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		s := m.slots[id]
		if !s.pending || s.launchedAt != m.tickSeq {
			continue
		}
		s.timeouts++
		m.logger.Warn().
			Str("hive_id", id).
			Dur("timeout", m.cfg.TickTimeout).
			Int64("timeouts", s.timeouts).
			Msg("Stream step exceeded tick timeout, skipping its contribution this tick")
	}
}

func (m *Manager) publishIfDue() {
	m.mu.RLock()
	due := m.now().Sub(m.periodStart) >= m.cfg.PublishPeriod
	m.mu.RUnlock()
	if !due {
		return
	}

	m.publishRound()

	m.mu.Lock()
	m.periodStart = m.now()
	m.mu.Unlock()
}

// publishRound sends one telemetry record per source. Counters reset only for
// sources whose publish succeeded; failed sources carry their counts forward.
func (m *Manager) publishRound() (ok, failed int) {
	cpuPct := 0.0
	if m.cpu != nil {
		cpuPct = m.cpu.Percent()
	}
	now := m.now()

	for _, id := range m.order {
		s := m.slots[id]

		m.mu.RLock()
		snapshot := s.metrics
		m.mu.RUnlock()

		telemetry := models.NewTelemetry(id, s.apiaryID, snapshot, cpuPct, now)
		payload, err := json.Marshal(telemetry)
		if err != nil {
			m.logger.Error().Err(err).Str("hive_id", id).Msg("Failed to encode telemetry")
			failed++
			continue
		}

		topic := publisher.Topic(id)
		err = m.publish(topic, payload)

		m.mu.Lock()
		s.lastPublishOK = err == nil
		if err == nil {
			// No merge can interleave: merges run on this goroutine
			s.metrics.ResetCounts()
			s.lastPublish = now
			m.lastPublish = now
		}
		m.mu.Unlock()

		if err != nil {
			failed++
			m.logger.Warn().
				Err(err).
				Str("hive_id", id).
				Int("bees_in", snapshot.BeesIn).
				Int("bees_out", snapshot.BeesOut).
				Msg("Publish failed, keeping counts for next period")
		} else {
			ok++
			m.logger.Info().
				Str("hive_id", id).
				Str("topic", topic).
				Int("bees_in", telemetry.BeesIn).
				Int("bees_out", telemetry.BeesOut).
				Int("bees_net", telemetry.BeesNet).
				Float64("fps", telemetry.FPS).
				Float64("cpu_pct", telemetry.CPUPct).
				Msg("Telemetry published")
		}

		m.record(id, topic, payload, err, now)
	}

	m.pruneJournal(now)
	return ok, failed
}

func (m *Manager) publish(topic string, payload []byte) error {
	if m.publisher == nil {
		return publisher.ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PublishTimeout)
	defer cancel()
	return m.publisher.Publish(ctx, topic, payload, m.cfg.QoS)
}

// record writes the attempt to the journal. Journal failures never affect counters.
func (m *Manager) record(hiveID, topic string, payload []byte, pubErr error, at time.Time) {
	if m.journal == nil {
		return
	}

	entry := journal.Entry{
		HiveID:      hiveID,
		Topic:       topic,
		Payload:     string(payload),
		OK:          pubErr == nil,
		PublishedAt: at,
	}
	if pubErr != nil {
		entry.Error = pubErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.journal.Record(ctx, entry); err != nil {
		m.logger.Warn().Err(err).Str("hive_id", hiveID).Msg("Failed to journal publish attempt")
	}
}

func (m *Manager) pruneJournal(now time.Time) {
	if m.journal == nil || m.cfg.JournalRetention <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := m.journal.Prune(ctx, now.Add(-m.cfg.JournalRetention))
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to prune publish journal")
		return
	}
	if n > 0 {
		m.logger.Debug().Int64("removed", n).Msg("Pruned publish journal")
	}
}
