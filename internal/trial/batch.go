package trial

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/trial.report/internal/monitoring"
	"github.com/banshee-data/trial.report/internal/trialerr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Job names a trial and how to fetch its tables.
type Job struct {
	Name string
	Load func(ctx context.Context) (*Tables, error)
}

// Outcome is the result of one job in a batch. Exactly one of Result and
// Err is set.
type Outcome struct {
	Name    string
	Result  *Result
	Err     error
	Skipped bool // cancelled before it started

	FinishedAt time.Time
}

// Batch runs jobs through a Pipeline with bounded concurrency. Trials share
// no state, so their order of completion does not matter.
type Batch struct {
	Pipeline *Pipeline
	Workers  int
	RunID    uuid.UUID

	// OnOutcome, if set, is called as each job finishes. Calls are
	// serialised.
	OnOutcome func(Outcome)
}

// NewBatch returns a batch with a fresh RunID.
func NewBatch(p *Pipeline, workers int) *Batch {
	if workers < 1 {
		workers = 1
	}
	return &Batch{Pipeline: p, Workers: workers, RunID: uuid.New()}
}

// Run executes every job and returns outcomes in job order. A failing trial
// never stops the others. Cancelling ctx skips jobs that have not started;
// running jobs finish.
func (b *Batch) Run(ctx context.Context, jobs []Job) []Outcome {
	out := make([]Outcome, len(jobs))
	monitoring.Opsf("batch %s: %d trials, %d workers", b.RunID, len(jobs), b.Workers)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(b.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			o := b.runOne(ctx, job)
			mu.Lock()
			out[i] = o
			if b.OnOutcome != nil {
				b.OnOutcome(o)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	ok, failed, skipped := Summarize(out)
	monitoring.Opsf("batch %s: %d ok, %d failed, %d skipped", b.RunID, ok, failed, skipped)
	return out
}

func (b *Batch) runOne(ctx context.Context, job Job) Outcome {
	o := Outcome{Name: job.Name}
	if err := ctx.Err(); err != nil {
		o.Err, o.Skipped = err, true
		return o
	}
	tables, err := job.Load(ctx)
	if err != nil {
		o.Err = trialerr.WithTrial(err, job.Name)
		o.FinishedAt = b.Pipeline.Clock.Now()
		monitoring.Opsf("batch %s: load failed: %v", b.RunID, o.Err)
		return o
	}
	o.Result, o.Err = b.Pipeline.Run(context.WithoutCancel(ctx), job.Name, tables)
	o.FinishedAt = b.Pipeline.Clock.Now()
	if o.Err != nil {
		monitoring.Opsf("batch %s: %v", b.RunID, o.Err)
	}
	return o
}

// Summarize counts successful, failed and skipped outcomes.
func Summarize(outcomes []Outcome) (ok, failed, skipped int) {
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			skipped++
		case o.Err != nil:
			failed++
		default:
			ok++
		}
	}
	return ok, failed, skipped
}
