package ports

// Metric names understood by the Prometheus observability adapter.
const (
	MetricSamplesRead           = "tempflow_samples_read_total"
	MetricSamplesWritten        = "tempflow_samples_written_total"
	MetricWriteErrors           = "tempflow_write_errors_total"
	MetricWaitTimeouts          = "tempflow_wait_timeouts_total"
	MetricInstanceNotifications = "tempflow_instance_notifications_total"
	MetricSinkErrors            = "tempflow_sink_errors_total"
	MetricDrainCycles           = "tempflow_drain_cycles_total"

	MetricSinkLatency = "tempflow_sink_latency_seconds"
	MetricBatchSize   = "tempflow_drain_batch_size"

	MetricLoopState     = "tempflow_poll_state"
	MetricJournalBytes  = "tempflow_journal_size_bytes"
	MetricSourcePending = "tempflow_source_pending"
)
