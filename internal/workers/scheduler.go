package workers

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SchedulerConfig configures periodic ingestion
type SchedulerConfig struct {
	Enabled           bool
	Interval          time.Duration
	InitialDelay      time.Duration
	RunTimeout        time.Duration
	ReextractAfterRun bool
}

// RunMetrics tracks scheduled ingestion statistics
type RunMetrics struct {
	TotalRuns         atomic.Int64
	SourcesProcessed  atomic.Int64
	SourcesFailed     atomic.Int64
	MessagesIngested  atomic.Int64
	MessagesExtracted atomic.Int64
	MessageFailures   atomic.Int64
	Reextracted       atomic.Int64
	LastRun           atomic.Value // time.Time
	LastError         atomic.Value // string
}

// MetricsSnapshot is a point-in-time copy of RunMetrics
type MetricsSnapshot struct {
	TotalRuns         int64     `json:"total_runs"`
	SourcesProcessed  int64     `json:"sources_processed"`
	SourcesFailed     int64     `json:"sources_failed"`
	MessagesIngested  int64     `json:"messages_ingested"`
	MessagesExtracted int64     `json:"messages_extracted"`
	MessageFailures   int64     `json:"message_failures"`
	Reextracted       int64     `json:"reextracted"`
	LastRun           time.Time `json:"last_run,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
}

// Scheduler runs the ingestion pipeline over all active sources on an
// interval, optionally followed by a re-extraction pass.
type Scheduler struct {
	ctx         context.Context
	cancel      context.CancelFunc
	config      SchedulerConfig
	ingestor    *Ingestor
	reextractor *Reextractor
	paused      atomic.Bool
	cycle       sync.Mutex
	lastRun     atomic.Pointer[RunSummary]
	metrics     *RunMetrics
	logger      *slog.Logger
}

// NewScheduler creates a scheduler; reextractor may be nil
func NewScheduler(config SchedulerConfig, ingestor *Ingestor, reextractor *Reextractor, logger *slog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:         ctx,
		cancel:      cancel,
		config:      config,
		ingestor:    ingestor,
		reextractor: reextractor,
		metrics:     &RunMetrics{},
		logger:      logger,
	}
}

// Start begins periodic ingestion in the background
func (s *Scheduler) Start() {
	if !s.config.Enabled {
		s.logger.Info("Scheduled ingestion is disabled")
		return
	}

	s.logger.Info("Starting ingestion scheduler",
		"interval", s.config.Interval,
		"initial_delay", s.config.InitialDelay,
		"reextract_after_run", s.config.ReextractAfterRun)

	go s.loop()
}

// Stop cancels the loop. An in-flight run stops before its next source.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping ingestion scheduler")
	s.cancel()
}

// Pause skips scheduled runs until Resume
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	s.logger.Info("Ingestion scheduler paused")
}

// Resume re-enables scheduled runs
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.logger.Info("Ingestion scheduler resumed")
}

// IsPaused returns true if scheduled runs are paused
func (s *Scheduler) IsPaused() bool {
	return s.paused.Load()
}

// IsRunning returns true until Stop is called
func (s *Scheduler) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

// LastRun returns the summary of the most recent run, or nil
func (s *Scheduler) LastRun() *RunSummary {
	return s.lastRun.Load()
}

// Metrics returns a snapshot of the run counters
func (s *Scheduler) Metrics() MetricsSnapshot {
	snap := MetricsSnapshot{
		TotalRuns:         s.metrics.TotalRuns.Load(),
		SourcesProcessed:  s.metrics.SourcesProcessed.Load(),
		SourcesFailed:     s.metrics.SourcesFailed.Load(),
		MessagesIngested:  s.metrics.MessagesIngested.Load(),
		MessagesExtracted: s.metrics.MessagesExtracted.Load(),
		MessageFailures:   s.metrics.MessageFailures.Load(),
		Reextracted:       s.metrics.Reextracted.Load(),
	}
	if t, ok := s.metrics.LastRun.Load().(time.Time); ok {
		snap.LastRun = t
	}
	if e, ok := s.metrics.LastError.Load().(string); ok {
		snap.LastError = e
	}
	return snap
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	initialDelay := time.NewTimer(s.config.InitialDelay)
	defer initialDelay.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Ingestion scheduler stopped")
			return

		case <-initialDelay.C:
			s.scheduledRun()

		case <-ticker.C:
			s.scheduledRun()
		}
	}
}

func (s *Scheduler) scheduledRun() {
	if s.paused.Load() {
		s.logger.Debug("Scheduler paused, skipping run")
		return
	}
	s.RunNow(s.ctx)
}

// RunNow performs one run immediately. It returns nil without running when
// another run of this scheduler is in progress.
func (s *Scheduler) RunNow(ctx context.Context) *RunSummary {
	if !s.cycle.TryLock() {
		s.logger.Info("Ingestion run already in progress, skipping")
		return nil
	}
	defer s.cycle.Unlock()

	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	summary := s.ingestor.RunAll(ctx)
	s.record(summary)

	if s.config.ReextractAfterRun && s.reextractor != nil && ctx.Err() == nil {
		res, err := s.reextractor.Run(ctx, nil)
		if err != nil {
			s.logger.Error("Re-extraction after run failed", "error", err)
		} else {
			s.metrics.Reextracted.Add(int64(res.Extracted))
		}
	}

	s.lastRun.Store(summary)
	return summary
}

func (s *Scheduler) record(summary *RunSummary) {
	totals := summary.Totals()
	s.metrics.TotalRuns.Add(1)
	s.metrics.SourcesProcessed.Add(int64(totals.Sources))
	s.metrics.SourcesFailed.Add(int64(totals.FailedSources))
	s.metrics.MessagesIngested.Add(int64(totals.Ingested))
	s.metrics.MessagesExtracted.Add(int64(totals.Extracted))
	s.metrics.MessageFailures.Add(int64(totals.MessageFailures))
	s.metrics.LastRun.Store(summary.FinishedAt)

	if summary.Error != "" {
		s.metrics.LastError.Store(summary.Error)
		return
	}
	for _, r := range summary.Sources {
		if r.Failed() {
			s.metrics.LastError.Store(r.Error)
		}
	}
}
