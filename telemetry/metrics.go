package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// TickBuckets for host-thread dispatch, which must fit inside a frame
	TickBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025}

	// CallBuckets for reducer round trips (network + server execution)
	CallBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

	// BatchBuckets for per-tick drained batch sizes
	BatchBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}
)

// Event Flow Metrics
var (
	// EventsPublishedTotal counts envelopes accepted by the mailbox, by class (row, lifecycle, reducer)
	EventsPublishedTotal CounterVec = noopCounterVec{}

	// EventsDispatchedTotal counts envelopes delivered into queues by the tick
	EventsDispatchedTotal Counter = NoopStat{}

	// TickDurationSeconds measures the drain+dispatch+rotate stage
	TickDurationSeconds Histogram = NoopStat{}

	// TickBatchSize measures envelopes drained per tick
	TickBatchSize Histogram = NoopStat{}

	// MailboxPending tracks envelopes awaiting drain
	MailboxPending Gauge = NoopStat{}

	// MailboxDroppedTotal tracks messages rejected by the mailbox (closed or bounded)
	MailboxDroppedTotal Gauge = NoopStat{}

	// QueuesRegistered tracks the number of per-type queues created
	QueuesRegistered Gauge = NoopStat{}

	// RowsDroppedTotal counts row events dropped before reaching a queue, by reason (decode, overflow)
	RowsDroppedTotal CounterVec = noopCounterVec{}
)

// Lifecycle Metrics
var (
	// LifecycleTransitionsTotal counts connection state transitions by resulting state
	LifecycleTransitionsTotal CounterVec = noopCounterVec{}
)

// Reducer Metrics
var (
	// ReducerCallsTotal counts submitted calls by reducer and submit result (ok, rejected)
	ReducerCallsTotal CounterVec = noopCounterVec{}

	// ReducerOutcomesTotal counts received outcomes by status
	ReducerOutcomesTotal CounterVec = noopCounterVec{}

	// ReducerResultsDroppedTotal counts outcomes dropped for unknown or consumed call IDs
	ReducerResultsDroppedTotal Counter = NoopStat{}

	// CallsInFlight tracks calls submitted but not yet resolved
	CallsInFlight Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after Initialize().
func InitMetrics() {
	// Event Flow Metrics
	EventsPublishedTotal = NewCounterVec(
		"events_published_total",
		"Envelopes accepted by the mailbox by class",
		[]string{"class"},
	)
	EventsDispatchedTotal = NewCounter(
		"events_dispatched_total",
		"Envelopes delivered into per-type queues",
	)
	TickDurationSeconds = NewHistogramWithBuckets(
		"tick_duration_seconds",
		"Duration of the drain/dispatch/rotate stage",
		TickBuckets,
	)
	TickBatchSize = NewHistogramWithBuckets(
		"tick_batch_size",
		"Envelopes drained per tick",
		BatchBuckets,
	)
	MailboxPending = NewGauge(
		"mailbox_pending",
		"Envelopes awaiting drain",
	)
	MailboxDroppedTotal = NewGauge(
		"mailbox_dropped_total",
		"Messages rejected by the mailbox since start",
	)
	QueuesRegistered = NewGauge(
		"queues_registered",
		"Per-type queues created during setup",
	)
	RowsDroppedTotal = NewCounterVec(
		"rows_dropped_total",
		"Row events dropped before reaching a queue",
		[]string{"reason"},
	)

	// Lifecycle Metrics
	LifecycleTransitionsTotal = NewCounterVec(
		"lifecycle_transitions_total",
		"Connection state transitions by resulting state",
		[]string{"state"},
	)

	// Reducer Metrics
	ReducerCallsTotal = NewCounterVec(
		"reducer_calls_total",
		"Submitted reducer calls by reducer and submit result",
		[]string{"reducer", "result"},
	)
	ReducerOutcomesTotal = NewCounterVec(
		"reducer_outcomes_total",
		"Received reducer outcomes by status",
		[]string{"status"},
	)
	ReducerResultsDroppedTotal = NewCounter(
		"reducer_results_dropped_total",
		"Outcomes dropped for unknown or already-consumed call IDs",
	)
	CallsInFlight = NewGauge(
		"calls_inflight",
		"Reducer calls submitted but not yet resolved",
	)
}
