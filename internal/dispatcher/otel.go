package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/ridemap/ridemap/internal/dispatcher"

// Instrument names.
const (
	metricQueueSize = "ridemap.dispatcher.queue.size"
	metricProcessed = "ridemap.dispatcher.commands.processed"
	metricDropped   = "ridemap.dispatcher.commands.dropped"
	metricFailed    = "ridemap.dispatcher.commands.failed"
	metricDuration  = "ridemap.dispatcher.command.duration"
)

// initMetrics creates the dispatcher instruments on m. Queue sizes are
// observed per buffered command at collection time.
func (d *Dispatcher) initMetrics(m metric.Meter) error {
	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&d.processed, metricProcessed, "Commands handled"},
		{&d.dropped, metricDropped, "Commands dropped because their queue was full"},
		{&d.failed, metricFailed, "Commands whose handler returned an error"},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return fmt.Errorf("creating %s: %w", c.name, err)
		}
	}

	d.duration, err = m.Float64Histogram(metricDuration,
		metric.WithDescription("Handler execution time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("creating %s: %w", metricDuration, err)
	}

	d.queueSize, err = m.Int64ObservableGauge(metricQueueSize,
		metric.WithDescription("Commands waiting in a buffered queue"),
	)
	if err != nil {
		return fmt.Errorf("creating %s: %w", metricQueueSize, err)
	}
	_, err = m.RegisterCallback(d.observeQueues, d.queueSize)
	if err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}
	return nil
}

func (d *Dispatcher) observeQueues(_ context.Context, o metric.Observer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, buf := range d.buffers {
		o.ObserveInt64(d.queueSize, int64(len(buf)),
			metric.WithAttributes(attribute.String("command", cmd)))
	}
	return nil
}
