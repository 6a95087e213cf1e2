// Package scheduler drives the periodic work: the fast supervisor poll and
// the slower telemetry collection, which is batched before it is handed off.
// The scheduler does not publish anything itself; it invokes a callback when
// a batch is ready.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Natclanwy/cc-sfs/internal/models"
)

// Intervals configures the three tickers. A zero CollectInterval disables
// collection and batching.
type Intervals struct {
	Poll    time.Duration
	Collect time.Duration
	Batch   time.Duration
}

// Scheduler runs the poll loop and the collection loop.
type Scheduler struct {
	intervals Intervals
	logger    *zap.Logger

	poll    func()
	collect func() models.SensorStatus

	batch   []models.SensorStatus
	batchMu sync.Mutex

	onBatchReady func([]models.SensorStatus)
}

// New creates a Scheduler. poll is called every Poll interval and collect
// every Collect interval.
func New(intervals Intervals, poll func(), collect func() models.SensorStatus, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		intervals: intervals,
		logger:    logger.Named("scheduler"),
		poll:      poll,
		collect:   collect,
	}
}

// OnBatchReady sets the callback invoked with each batch of collected
// statuses. It runs on the collection loop and may block it, never the poll
// loop.
func (s *Scheduler) OnBatchReady(fn func([]models.SensorStatus)) {
	s.onBatchReady = fn
}

// Start runs both loops until ctx is cancelled. The remaining batch is
// flushed on shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pollLoop(ctx)
	}()

	if s.intervals.Collect > 0 && s.collect != nil {
		s.collectLoop(ctx)
	}
	wg.Wait()
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.intervals.Poll)
	defer ticker.Stop()

	s.poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *Scheduler) collectLoop(ctx context.Context) {
	collectTicker := time.NewTicker(s.intervals.Collect)
	defer collectTicker.Stop()

	batchInterval := s.intervals.Batch
	if batchInterval <= 0 {
		batchInterval = s.intervals.Collect
	}
	batchTicker := time.NewTicker(batchInterval)
	defer batchTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushBatch()
			return
		case <-collectTicker.C:
			s.collectOnce()
		case <-batchTicker.C:
			s.flushBatch()
		}
	}
}

func (s *Scheduler) collectOnce() {
	status := s.collect()

	s.batchMu.Lock()
	s.batch = append(s.batch, status)
	s.batchMu.Unlock()

	s.logger.Debug("Collected status", zap.Time("timestamp", status.Timestamp))
}

// flushBatch hands the current batch to the callback and resets it.
func (s *Scheduler) flushBatch() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	batch := s.batch
	s.batch = nil
	s.batchMu.Unlock()

	s.logger.Debug("Flushing batch", zap.Int("count", len(batch)))
	if s.onBatchReady != nil {
		s.onBatchReady(batch)
	}
}
