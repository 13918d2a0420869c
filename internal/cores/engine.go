package cores

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crc-cores/internal/model"
	"github.com/sells-group/crc-cores/internal/resilience"
	"github.com/sells-group/crc-cores/internal/store"
)

// ErrNotConfirmed is returned when the confirmation callback declines the
// replacement of the output collection.
var ErrNotConfirmed = errors.New("cores: replacement not confirmed")

// warningLogLimit caps the warnings logged individually per run.
const warningLogLimit = 50

// Engine runs the enrichment job against a store.
type Engine struct {
	st    store.Store
	pipe  *Pipeline
	cols  Collections
	retry resilience.RetryConfig
}

// RunOpts configures one run.
type RunOpts struct {
	DryRun  bool                  // transform only; write nothing
	Timeout time.Duration         // overall job deadline; 0 means none
	Confirm func(s *Summary) bool // asked before replacing the output; nil confirms
}

// Summary describes a finished or aborted run.
type Summary struct {
	RunID     string          `json:"run_id"`
	Status    model.RunStatus `json:"status"`
	Wells     int             `json:"wells"`
	Intervals int             `json:"intervals"`
	Filtered  int             `json:"filtered"`
	Written   int64           `json:"written"`
	Warnings  map[string]int  `json:"warnings,omitempty"`
	Elapsed   time.Duration   `json:"elapsed"`

	// Records holds the transformed output; set on dry runs so callers can
	// inspect it.
	Records []model.OutputRecord `json:"-"`
}

func (s *Summary) result() *model.RunResult {
	return &model.RunResult{
		Wells:     s.Wells,
		Intervals: s.Intervals,
		Filtered:  s.Filtered,
		Written:   s.Written,
		Warnings:  s.Warnings,
	}
}

// NewEngine creates an engine.
func NewEngine(st store.Store, pipe *Pipeline, cols Collections, retry resilience.RetryConfig) *Engine {
	return &Engine{st: st, pipe: pipe, cols: cols, retry: retry}
}

// Run executes the job: load, transform, confirm, replace. Every run is
// recorded in the run log, including dry runs and failures.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*Summary, error) {
	log := zap.L().With(zap.String("component", "cores.engine"))
	start := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	run, err := e.st.StartRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "engine: start run")
	}
	log = log.With(zap.String("run_id", run.ID))
	sum := &Summary{RunID: run.ID, Status: model.RunStatusRunning}

	finish := func(status model.RunStatus, cause error) {
		sum.Status = status
		sum.Elapsed = time.Since(start)
		msg := ""
		if cause != nil {
			msg = cause.Error()
		}
		// The run log is written even when the job context is done.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if ferr := e.st.FinishRun(fctx, run.ID, status, sum.result(), msg); ferr != nil {
			log.Error("failed to record run status", zap.String("status", string(status)), zap.Error(ferr))
		}
	}

	in, err := e.load(ctx)
	if err != nil {
		finish(model.RunStatusFailed, err)
		return sum, err
	}

	res, err := e.pipe.Transform(ctx, in)
	if err != nil {
		finish(model.RunStatusFailed, err)
		return sum, err
	}
	res.Report.Log(warningLogLimit)

	sum.Wells = res.Wells
	sum.Intervals = res.Intervals
	sum.Filtered = res.Filtered
	sum.Warnings = res.Report.Counts()

	if opts.DryRun {
		sum.Records = res.Records
		finish(model.RunStatusAborted, nil)
		log.Info("dry run complete", zap.Int("wells", sum.Wells), zap.Int("records", len(res.Records)))
		return sum, nil
	}

	if opts.Confirm != nil && !opts.Confirm(sum) {
		finish(model.RunStatusAborted, ErrNotConfirmed)
		return sum, ErrNotConfirmed
	}

	n, err := e.st.ReplaceOutput(ctx, e.cols.Output, res.Records)
	if err != nil {
		err = eris.Wrapf(err, "engine: replace %s", e.cols.Output)
		finish(model.RunStatusFailed, err)
		return sum, err
	}
	sum.Written = n

	finish(model.RunStatusComplete, nil)
	log.Info("run complete",
		zap.Int("wells", sum.Wells),
		zap.Int64("written", sum.Written),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

// load reads the four inputs concurrently, retrying transient errors.
func (e *Engine) load(ctx context.Context) (Inputs, error) {
	var in Inputs
	targets := []struct {
		name string
		dst  *[]model.Doc
	}{
		{e.cols.CoresRaw, &in.Cores},
		{e.cols.MapServer, &in.MapServer},
		{e.cols.Scraped, &in.Scraped},
		{e.cols.GMU, &in.GMU},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			cfg := e.retry
			cfg.OnRetry = resilience.RetryLogger("cores.engine", "load "+t.name)
			docs, err := resilience.DoVal(gctx, cfg, func(ctx context.Context) ([]model.Doc, error) {
				return e.st.LoadCollection(ctx, t.name)
			})
			if err != nil {
				return eris.Wrapf(err, "engine: load %s", t.name)
			}
			*t.dst = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}

	zap.L().Info("inputs loaded",
		zap.String("component", "cores.engine"),
		zap.Int("cores", len(in.Cores)),
		zap.Int("mapserver", len(in.MapServer)),
		zap.Int("scraped", len(in.Scraped)),
		zap.Int("gmu", len(in.GMU)),
	)
	return in, nil
}
