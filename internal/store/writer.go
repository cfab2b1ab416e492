package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/shpitdev/listing-enricher/internal/core"
	"github.com/shpitdev/listing-enricher/internal/listing"
	"github.com/shpitdev/listing-enricher/internal/metrics"
)

// DefaultThreshold is the number of buffered rows that triggers a flush.
const DefaultThreshold = 10

// BatchWriter buffers enriched listings and appends them to a destination in
// fixed-size batches. It is not safe for concurrent use.
type BatchWriter struct {
	dest      RowAppender
	threshold int
	buf       []listing.EnrichedListing
	written   int

	metrics *metrics.Metrics
	log     *zap.Logger
}

type WriterOption func(*BatchWriter)

func WithThreshold(n int) WriterOption {
	return func(w *BatchWriter) {
		if n > 0 {
			w.threshold = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) WriterOption { return func(w *BatchWriter) { w.metrics = m } }

func WithLogger(l *zap.Logger) WriterOption { return func(w *BatchWriter) { w.log = l } }

func NewBatchWriter(dest RowAppender, opts ...WriterOption) *BatchWriter {
	w := &BatchWriter{dest: dest, threshold: DefaultThreshold, log: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start prepares the destination. A fresh run (startPage 1) clears it and writes the
// header; a resumed run appends after whatever is already there.
func (w *BatchWriter) Start(ctx context.Context, startPage int) error {
	if startPage > 1 {
		w.log.Info("resuming, keeping existing rows", zap.Int("start_page", startPage))
		return nil
	}
	if err := w.dest.Clear(ctx); err != nil {
		w.metrics.FlushFailed()
		return &core.PersistenceError{Rows: 0, Err: err}
	}
	if err := w.dest.AppendRows(ctx, [][]string{listing.Header()}); err != nil {
		w.metrics.FlushFailed()
		return &core.PersistenceError{Rows: 1, Err: err}
	}
	w.log.Info("destination cleared, header written")
	return nil
}

// Add buffers one record and flushes once the threshold is reached. It reports whether
// a flush happened.
func (w *BatchWriter) Add(ctx context.Context, rec listing.EnrichedListing) (bool, error) {
	w.buf = append(w.buf, rec)
	if len(w.buf) < w.threshold {
		return false, nil
	}
	if err := w.Flush(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Flush appends every buffered row in one call. On failure the rows stay buffered.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	n := len(w.buf)
	if err := w.dest.AppendRows(ctx, listing.Rows(w.buf)); err != nil {
		w.metrics.FlushFailed()
		w.log.Error("flush failed", zap.Int("rows", n), zap.Error(err))
		return &core.PersistenceError{Rows: n, Err: err}
	}
	w.buf = nil
	w.written += n
	w.metrics.Flushed(n)
	w.log.Info("flushed rows", zap.Int("rows", n), zap.Int("written", w.written))
	return nil
}

// Threshold is the batch size that triggers a flush.
func (w *BatchWriter) Threshold() int { return w.threshold }

// Pending is the number of buffered, unwritten rows.
func (w *BatchWriter) Pending() int { return len(w.buf) }

// Written is the number of data rows appended so far.
func (w *BatchWriter) Written() int { return w.written }
