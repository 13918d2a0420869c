// Package cores implements the CRC well enrichment job: intervals from
// cores_raw are grouped into wells and joined with map-server, scrape and
// geologic map unit context to produce the cores collection.
package cores

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crc-cores/internal/model"
)

// ErrAmbiguousMatch is returned under MatchStrict when a join key matches more
// than one foreign record.
var ErrAmbiguousMatch = errors.New("cores: ambiguous join match")

// Inputs are the four source collections, each in primary-key order.
type Inputs struct {
	Cores     []model.Doc
	MapServer []model.Doc
	Scraped   []model.Doc
	GMU       []model.Doc
}

// Result is the outcome of a transform.
type Result struct {
	Records   []model.OutputRecord // filtered, sorted by Lib Num
	Wells     int                  // wells before filtering
	Intervals int                  // core records grouped
	Filtered  int                  // wells dropped by the filter
	Report    *Report
}

// Pipeline is the pure transformation from source documents to output
// records. It holds no per-run state and is safe for concurrent use if its
// Filter is.
type Pipeline struct {
	opts Options
}

// NewPipeline creates a Pipeline, filling unset options with defaults.
func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

type partition struct{ start, end int }

// partitions splits n wells into contiguous ranges, about four per worker.
func partitions(n, workers int) []partition {
	if n == 0 {
		return nil
	}
	size := max(1, (n+workers*4-1)/(workers*4))
	parts := make([]partition, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		parts = append(parts, partition{start: start, end: min(start+size, n)})
	}
	return parts
}

// Transform groups, enriches and filters the inputs. Wells are enriched in
// parallel partitions; each partition writes only its own slots, so the
// result does not depend on scheduling.
func (p *Pipeline) Transform(ctx context.Context, in Inputs) (*Result, error) {
	log := zap.L().With(zap.String("component", "cores.pipeline"))

	rep := &Report{}
	wells := GroupByWell(in.Cores, rep)
	j := &joiner{
		opts:      p.opts,
		mapserver: BuildIndex("mapserver", in.MapServer, pathLibNo, rep),
		scraped:   BuildIndex("scraped", in.Scraped, pathSource, rep),
		gmu:       BuildIndex("gmu", in.GMU, pathGeohash, rep),
	}
	log.Debug("inputs indexed",
		zap.Int("wells", len(wells)),
		zap.Int("mapserver_keys", j.mapserver.Len()),
		zap.Int("scraped_keys", j.scraped.Len()),
		zap.Int("gmu_keys", j.gmu.Len()),
	)

	records := make([]model.OutputRecord, len(wells))
	keep := make([]bool, len(wells))
	parts := partitions(len(wells), p.opts.Concurrency)
	partReports := make([]Report, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for pi, part := range parts {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			for i := part.start; i < part.end; i++ {
				rec, err := j.enrich(wells[i], &partReports[pi])
				if err != nil {
					return err
				}
				records[i] = rec
				keep[i] = p.opts.Filter.Keep(&records[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "cores: transform")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "cores: transform")
	}

	for i := range partReports {
		rep.merge(&partReports[i])
	}

	res := &Result{Wells: len(wells), Intervals: len(in.Cores), Report: rep}
	res.Records = make([]model.OutputRecord, 0, len(records))
	for i := range records {
		if keep[i] {
			res.Records = append(res.Records, records[i])
		}
	}
	res.Filtered = res.Wells - len(res.Records)

	log.Info("transform complete",
		zap.Int("wells", res.Wells),
		zap.Int("intervals", res.Intervals),
		zap.Int("filtered", res.Filtered),
		zap.Int("warnings", len(rep.Warnings)),
	)
	return res, nil
}
