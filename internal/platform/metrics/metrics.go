package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	runsProcessed      uint64
	runsFailed         uint64
	paychecksCommitted uint64
	paychecksInReview  uint64
	calculationErrors  uint64
	runDurationMs      uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordRun counts one pass of the run executor. A run that stops in review
// and is later finished is recorded once per pass.
func (c *Collector) RecordRun(status string, committed, review, failed int, duration time.Duration) {
	atomic.AddUint64(&c.runsProcessed, 1)
	if status == "FAILED" {
		atomic.AddUint64(&c.runsFailed, 1)
	}
	atomic.AddUint64(&c.paychecksCommitted, uint64(max(committed, 0)))
	atomic.AddUint64(&c.paychecksInReview, uint64(max(review, 0)))
	atomic.AddUint64(&c.calculationErrors, uint64(max(failed, 0)))
	atomic.AddUint64(&c.runDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	runs := atomic.LoadUint64(&c.runsProcessed)
	runMs := atomic.LoadUint64(&c.runDurationMs)
	avgRun := float64(0)
	if runs > 0 {
		avgRun = float64(runMs) / float64(runs)
	}
	return map[string]any{
		"requestsTotal":           total,
		"errorsTotal":             errs,
		"rateLimitedTotal":        limited,
		"avgDurationMs":           avg,
		"totalDurationMs":         totalMs,
		"runsProcessedTotal":      runs,
		"runsFailedTotal":         atomic.LoadUint64(&c.runsFailed),
		"paychecksCommittedTotal": atomic.LoadUint64(&c.paychecksCommitted),
		"paychecksInReviewTotal":  atomic.LoadUint64(&c.paychecksInReview),
		"calculationErrorsTotal":  atomic.LoadUint64(&c.calculationErrors),
		"avgRunDurationMs":        avgRun,
	}
}
