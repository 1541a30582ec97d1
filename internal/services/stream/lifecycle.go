package stream

import (
	"time"
)

// shutdown stops scheduling, drains in-flight steps under the tick timeout,
// optionally flushes counters once more and releases every worker. It runs
// on the goroutine that drove the ticks, or on Close when Run never started.
func (m *Manager) shutdown() {
	m.shutdownOnce.Do(func() {
		m.stopping.Store(true)
		m.logger.Info().Int("in_flight", m.pendingCount()).Msg("Stopping stream manager")

		m.drain()

		if m.cfg.FlushOnShutdown {
			ok, failed := m.publishRound()
			m.logger.Info().Int("published", ok).Int("failed", failed).Msg("Final flush complete")
		}

		for _, id := range m.order {
			s := m.slots[id]
			if s.pending {
				// Released by runStep once the hung step returns
				m.logger.Warn().Str("hive_id", id).Msg("Stream step still running at shutdown, deferring release")
				continue
			}
			m.releaseWorker(s)
		}

		m.cancelSteps()
		m.logger.Info().Msg("Stream manager stopped")
	})
}

// drain waits for outstanding steps, bounded by the tick timeout
func (m *Manager) drain() {
	if m.pendingCount() == 0 {
		return
	}

	timer := time.NewTimer(m.cfg.TickTimeout)
	defer timer.Stop()

	for m.pendingCount() > 0 {
		select {
		case res := <-m.results:
			m.merge(res)
		case <-timer.C:
			m.collectReady()
			return
		}
	}
}

func (m *Manager) pendingCount() int {
	n := 0
	for _, s := range m.slots {
		if s.pending {
			n++
		}
	}
	return n
}

func (m *Manager) releaseWorker(s *slot) {
	if err := s.worker.Release(); err != nil {
		m.logger.Warn().Err(err).Str("hive_id", s.worker.HiveID()).Msg("Failed to release stream worker")
	}
}

// Close releases every worker when Run was never started; otherwise it waits
// for Run to finish its own shutdown.
func (m *Manager) Close() {
	if m.running.CompareAndSwap(false, true) {
		m.shutdown()
		close(m.done)
		return
	}
	<-m.done
}
