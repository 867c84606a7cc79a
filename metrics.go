package astrodb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    importCounter   prometheus.Counter
//	    searchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordImport(records int, duration time.Duration, err error) {
//	    p.importCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordImport is called after each import run.
	// records is the number of records materialized, duration is the
	// total run time, err is nil if successful.
	RecordImport(records int, duration time.Duration, err error)

	// RecordOpen is called after each table open.
	RecordOpen(duration time.Duration, err error)

	// RecordPopulate is called after each object set populate.
	// found is the number of references the populate produced.
	RecordPopulate(found int, duration time.Duration, err error)

	// RecordSearch is called after each search execution.
	// matches is the number of matching records.
	RecordSearch(matches int, duration time.Duration, err error)

	// RecordFlush is called after each record store flush.
	RecordFlush(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordImport(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordOpen(time.Duration, error)          {}
func (NoopMetricsCollector) RecordPopulate(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordFlush(time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ImportCount        atomic.Int64
	ImportErrors       atomic.Int64
	ImportRecords      atomic.Int64
	ImportTotalNanos   atomic.Int64
	OpenCount          atomic.Int64
	OpenErrors         atomic.Int64
	PopulateCount      atomic.Int64
	PopulateErrors     atomic.Int64
	PopulateFound      atomic.Int64
	PopulateTotalNanos atomic.Int64
	SearchCount        atomic.Int64
	SearchErrors       atomic.Int64
	SearchMatches      atomic.Int64
	SearchTotalNanos   atomic.Int64
	FlushCount         atomic.Int64
	FlushErrors        atomic.Int64
}

// RecordImport implements MetricsCollector.
func (b *BasicMetricsCollector) RecordImport(records int, duration time.Duration, err error) {
	b.ImportCount.Add(1)
	b.ImportRecords.Add(int64(records))
	b.ImportTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ImportErrors.Add(1)
	}
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(duration time.Duration, err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordPopulate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPopulate(found int, duration time.Duration, err error) {
	b.PopulateCount.Add(1)
	b.PopulateFound.Add(int64(found))
	b.PopulateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PopulateErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(matches int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchMatches.Add(int64(matches))
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(duration time.Duration, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ImportCount:      b.ImportCount.Load(),
		ImportErrors:     b.ImportErrors.Load(),
		ImportRecords:    b.ImportRecords.Load(),
		ImportAvgNanos:   b.getAvgImportNanos(),
		OpenCount:        b.OpenCount.Load(),
		OpenErrors:       b.OpenErrors.Load(),
		PopulateCount:    b.PopulateCount.Load(),
		PopulateErrors:   b.PopulateErrors.Load(),
		PopulateFound:    b.PopulateFound.Load(),
		PopulateAvgNanos: b.getAvgPopulateNanos(),
		SearchCount:      b.SearchCount.Load(),
		SearchErrors:     b.SearchErrors.Load(),
		SearchMatches:    b.SearchMatches.Load(),
		SearchAvgNanos:   b.getAvgSearchNanos(),
		FlushCount:       b.FlushCount.Load(),
		FlushErrors:      b.FlushErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgImportNanos() int64 {
	count := b.ImportCount.Load()
	if count == 0 {
		return 0
	}
	return b.ImportTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgPopulateNanos() int64 {
	count := b.PopulateCount.Load()
	if count == 0 {
		return 0
	}
	return b.PopulateTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ImportCount      int64
	ImportErrors     int64
	ImportRecords    int64
	ImportAvgNanos   int64
	OpenCount        int64
	OpenErrors       int64
	PopulateCount    int64
	PopulateErrors   int64
	PopulateFound    int64
	PopulateAvgNanos int64
	SearchCount      int64
	SearchErrors     int64
	SearchMatches    int64
	SearchAvgNanos   int64
	FlushCount       int64
	FlushErrors      int64
}
