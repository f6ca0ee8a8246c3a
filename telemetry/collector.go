package telemetry

import (
	"sync"
	"time"
)

// StatsProvider is implemented by components with sampled (rather than
// event-driven) stats. The bridge is the usual provider.
type StatsProvider interface {
	MailboxStats() (pending int, dropped uint64)
	QueuesRegistered() int
	CallsInFlight() int
}

// StatsCollector periodically samples a StatsProvider into gauges.
type StatsCollector struct {
	provider StatsProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewStatsCollector creates a collector; Start launches it.
func NewStatsCollector(provider StatsProvider, interval time.Duration) *StatsCollector {
	return &StatsCollector{
		provider: provider,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (sc *StatsCollector) Start() {
	sc.wg.Add(1)
	go sc.collectLoop()
}

// Stop stops the collector
func (sc *StatsCollector) Stop() {
	close(sc.stopCh)
	sc.wg.Wait()
}

func (sc *StatsCollector) collectLoop() {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	sc.collect()

	for {
		select {
		case <-ticker.C:
			sc.collect()
		case <-sc.stopCh:
			return
		}
	}
}

func (sc *StatsCollector) collect() {
	if sc.provider == nil {
		return
	}

	pending, dropped := sc.provider.MailboxStats()
	MailboxPending.Set(float64(pending))
	MailboxDroppedTotal.Set(float64(dropped))
	QueuesRegistered.Set(float64(sc.provider.QueuesRegistered()))
	CallsInFlight.Set(float64(sc.provider.CallsInFlight()))
}
