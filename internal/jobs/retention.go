package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Pruner deletes records older than a cutoff; *eventlog.Logger implements it.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob keeps the voice event log bounded. It runs on a configurable
// interval (default: 1 hour) and deletes events older than the retention
// window.
type RetentionJob struct {
	pruner    Pruner
	logger    *log.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewRetentionJob creates a new retention job.
func NewRetentionJob(p Pruner, logger *log.Logger, retention, interval time.Duration) *RetentionJob {
	if interval == 0 {
		interval = 1 * time.Hour
	}
	return &RetentionJob{
		pruner:    p,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background job.
func (j *RetentionJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Printf("RetentionJob: started (retention=%v, interval=%v)", j.retention, j.interval)
}

// Stop gracefully stops the background job.
func (j *RetentionJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Println("RetentionJob: stopped")
}

func (j *RetentionJob) run() {
	defer j.wg.Done()

	// Run immediately on start
	j.prune()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.prune()
		case <-j.stopCh:
			return
		}
	}
}

func (j *RetentionJob) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	n, err := j.pruner.Prune(ctx, cutoff)
	if err != nil {
		j.logger.Printf("RetentionJob: failed to prune events before %s: %v", cutoff.Format(time.RFC3339), err)
		return
	}
	if n > 0 {
		j.logger.Printf("RetentionJob: pruned %d events before %s", n, cutoff.Format(time.RFC3339))
	}
}
