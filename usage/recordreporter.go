package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/valri11/usagedecoder/types"
)

type RecordPublisher interface {
	PublishRecords(ctx context.Context, records []types.UsageRecord) error
}

const defaultMaxPending = 10000

type recordReporter struct {
	publisher     RecordPublisher
	flushInterval time.Duration
	maxPending    int

	mx      *sync.Mutex
	pending []types.UsageRecord
	dropped int

	stop chan struct{}
	done chan struct{}
}

// WithFlushInterval batches reported records and publishes them every d.
func WithFlushInterval(d time.Duration) func(*recordReporter) {
	return func(r *recordReporter) {
		r.flushInterval = d
	}
}

// WithMaxPending bounds the batch kept between flushes. When publishing
// keeps failing the oldest records are dropped beyond n.
func WithMaxPending(n int) func(*recordReporter) {
	return func(r *recordReporter) {
		r.maxPending = n
	}
}

func NewRecordReporter(pub RecordPublisher, options ...func(*recordReporter)) *recordReporter {
	r := &recordReporter{
		publisher:  pub,
		maxPending: defaultMaxPending,
		mx:         &sync.Mutex{},
	}

	for _, opt := range options {
		opt(r)
	}

	if r.flushInterval > 0 {
		r.stop = make(chan struct{})
		r.done = make(chan struct{})
		go r.doDelayedReporting()
	}

	return r
}

func (r *recordReporter) ReportRecords(ctx context.Context, records []types.UsageRecord) error {
	if r.flushInterval == 0 {
		return r.publisher.PublishRecords(ctx, records)
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	r.retain(append(r.pending, records...))
	return nil
}

// Dropped returns the number of records discarded over the pending limit.
func (r *recordReporter) Dropped() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.dropped
}

// retain keeps the newest maxPending records. Callers hold mx.
func (r *recordReporter) retain(records []types.UsageRecord) {
	if r.maxPending > 0 && len(records) > r.maxPending {
		n := len(records) - r.maxPending
		r.dropped += n
		slog.Warn("usage records dropped", "count", n, "limit", r.maxPending)
		records = records[n:]
	}
	r.pending = records
}

// Close stops the batching loop after publishing what is still pending.
func (r *recordReporter) Close() error {
	if r.flushInterval == 0 {
		return nil
	}
	close(r.stop)
	<-r.done
	return nil
}

func (r *recordReporter) doDelayedReporting() {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-r.stop:
			if err := r.flush(ctx); err != nil {
				slog.Error("final flush of usage records", "error", err)
			}
			return
		case <-ticker.C:
			if err := r.flush(ctx); err != nil {
				slog.Error("flush usage records", "error", err)
			}
		}
	}
}

// flush publishes the pending batch; on failure the batch is kept for the
// next attempt.
func (r *recordReporter) flush(ctx context.Context) error {
	r.mx.Lock()
	batch := r.pending
	r.pending = nil
	r.mx.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := r.publisher.PublishRecords(ctx, batch)
	if err != nil {
		r.mx.Lock()
		r.retain(append(batch, r.pending...))
		r.mx.Unlock()
		return err
	}

	slog.Debug("usage records flushed", "count", len(batch))
	return nil
}
