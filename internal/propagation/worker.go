package propagation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/timescale"
	"github.com/star/satmap/internal/transform"
)

// propagateJob is a unit of work for the worker pool: one satellite at one epoch.
type propagateJob struct {
	sat   int
	index int
	epoch timescale.Epoch
	gmst  float64 // precomputed GMST for epoch
}

// PairResult is the outcome of one (satellite, epoch) propagation. Sat and
// Index locate the pair in the caller's inputs. Err is set only for fatal
// failures; a stale advisory leaves Position valid and sets Stale.
type PairResult struct {
	Sat      int
	Index    int
	Epoch    timescale.Epoch
	Position transform.PositionECEF
	Err      error
	Stale    *StaleElementsError
}

// WorkerPool manages a fixed number of goroutines for parallel propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int { return wp.workers }

// PropagateBatch propagates every prepared satellite to every epoch of seq
// and rotates the states into ECEF. Results arrive in completion order; the
// callback runs on the collecting goroutine only, so it needs no locking.
// Failures are logged and reported through the callback rather than
// aborting the batch. Cancelling ctx stops feeding new jobs; the returned
// error is ctx.Err() in that case.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, sats []*Prepared, seq timescale.Sequence, collect func(PairResult)) error {
	if len(sats) == 0 || seq.Len() == 0 {
		return ctx.Err()
	}

	// Precompute GMST once per epoch (same for all satellites).
	gmst := make([]float64, seq.Len())
	for i, e := range seq.All() {
		gmst[i] = transform.GMST(e)
	}

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan PairResult, wp.workers*2)

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := propagateSingle(sats[job.sat], job)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine, satellite-major.
	go func() {
		defer close(jobs)
		for s := range sats {
			for i, e := range seq.All() {
				job := propagateJob{sat: s, index: i, epoch: e, gmst: gmst[i]}
				select {
				case jobs <- job:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	start := time.Now()
	var successCount, errorCount int
	for result := range results {
		if result.Err != nil {
			errorCount++
			wp.logger.Warn("propagation failed",
				"satellite", sats[result.Sat].Elements.ID,
				"epoch", result.Epoch.String(),
				"error", result.Err,
			)
		} else {
			successCount++
		}
		collect(result)
	}
	duration := time.Since(start)
	metrics.RecordPropagation(duration, successCount, errorCount)

	wp.logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)
	return ctx.Err()
}

// propagateSingle propagates one satellite and transforms the result to ECEF.
func propagateSingle(sat *Prepared, job propagateJob) PairResult {
	res := PairResult{Sat: job.sat, Index: job.index, Epoch: job.epoch}

	sv, err := sat.StateAt(job.epoch)
	if err != nil {
		var stale *StaleElementsError
		if !errors.As(err, &stale) {
			res.Err = err
			return res
		}
		res.Stale = stale
	}

	// SGP4 snaps to whole seconds; rotate with the epoch actually evaluated.
	if sv.Epoch.Equal(job.epoch) {
		res.Position = transform.InertialToEarthFixedWithGMST(sv, job.gmst)
	} else {
		res.Position = transform.InertialToEarthFixed(sv)
	}
	if !transform.ValidateECEF(res.Position) {
		res.Err = errors.New("earth-fixed position outside plausible orbit radius")
	}
	return res
}
