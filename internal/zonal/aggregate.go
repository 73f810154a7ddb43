// Package zonal computes per-cell zonal statistics over grid chunks
// and flattens them into tabular observation records.
package zonal

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/uhi-lab/heatgrid/internal/grid"
	"github.com/uhi-lab/heatgrid/internal/imagery"
	"github.com/uhi-lab/heatgrid/internal/resilience"
)

// Record is one observation: a cell on a date with one mean value per
// band. A band with no valid pixels in the cell is nil, never dropped
// and never zero. Date is empty for static layers.
type Record struct {
	CellID   string
	Date     string
	Geometry *geom.Polygon
	Bands    map[string]*float64
}

// Table is the flattened result of aggregating one raster layer:
// records concatenated in (image, chunk) order. Order carries no
// meaning (identity lives in CellID/Date) but is deterministic for
// reproducible row counts.
type Table struct {
	Layer   string
	Bands   []string
	Records []Record
}

// Aggregator issues zonal-mean queries against the imagery backend
// with bounded concurrency, request pacing, and retry on transient
// failures. Each (image, chunk) aggregation is independent; results
// are merged in task order after all tasks finish.
type Aggregator struct {
	backend imagery.Backend
	limiter *rate.Limiter
	retry   resilience.Config
	workers int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithWorkers bounds the number of in-flight backend requests.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithRateLimit paces backend requests across all workers.
func WithRateLimit(perSecond float64) Option {
	return func(a *Aggregator) {
		if perSecond > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithRetry overrides the retry policy for backend calls.
func WithRetry(cfg resilience.Config) Option {
	return func(a *Aggregator) {
		a.retry = cfg
	}
}

// New creates an Aggregator over the given backend.
func New(backend imagery.Backend, opts ...Option) *Aggregator {
	a := &Aggregator{
		backend: backend,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		retry:   resilience.DefaultConfig(),
		workers: 4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate computes the zonal table for a single (static) image over
// all chunks.
func (a *Aggregator) Aggregate(ctx context.Context, img imagery.Image, chunks []grid.Chunk, scale float64) (*Table, error) {
	return a.run(ctx, []imagery.Image{img}, chunks, scale)
}

// AggregateSeries computes the zonal table for a time-ordered image
// sequence: one record per (cell, image) pair, each tagged with its
// image's date.
func (a *Aggregator) AggregateSeries(ctx context.Context, images []imagery.Image, chunks []grid.Chunk, scale float64) (*Table, error) {
	return a.run(ctx, images, chunks, scale)
}

func (a *Aggregator) run(ctx context.Context, images []imagery.Image, chunks []grid.Chunk, scale float64) (*Table, error) {
	if len(images) == 0 {
		return nil, eris.New("zonal: no images to aggregate")
	}
	layer := images[0].Product.Name
	bands := images[0].Product.Bands

	log := zap.L().With(
		zap.String("component", "zonal"),
		zap.String("layer", layer),
	)
	log.Info("aggregating layer",
		zap.Int("images", len(images)),
		zap.Int("chunks", len(chunks)),
		zap.Float64("scale", scale),
	)

	// Results are indexed by task so completion order never affects
	// row order.
	results := make([][]Record, len(images)*len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, img := range images {
		for j, chunk := range chunks {
			slot := i*len(chunks) + j
			g.Go(func() error {
				recs, err := a.aggregateChunk(gctx, img, chunk, scale)
				if err != nil {
					return err
				}
				results[slot] = recs
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table := &Table{Layer: layer, Bands: bands}
	for _, recs := range results {
		table.Records = append(table.Records, recs...)
	}

	log.Info("layer aggregated", zap.Int("records", len(table.Records)))
	return table, nil
}

// aggregateChunk issues one backend query for a chunk and flattens the
// response into records. A failed query fails the whole aggregation;
// the error names the chunk index and image date.
func (a *Aggregator) aggregateChunk(ctx context.Context, img imagery.Image, chunk grid.Chunk, scale float64) ([]Record, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "zonal: rate limit wait for %s chunk %d", img.Product.Name, chunk.Index)
	}

	retry := a.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.Logger("zonal", taskName(img, chunk))
	}

	stats, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]imagery.CellStats, error) {
		return a.backend.CellMeans(ctx, img, chunk.Cells, scale)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "zonal: aggregate %s", taskName(img, chunk))
	}

	byID := make(map[string]imagery.CellStats, len(stats))
	for _, s := range stats {
		byID[s.CellID] = s
	}

	// Every cell of the chunk must appear exactly once, in chunk
	// order, with an entry for every band even when nil.
	records := make([]Record, 0, len(chunk.Cells))
	for _, cell := range chunk.Cells {
		s, ok := byID[cell.ID]
		if !ok {
			return nil, eris.Errorf("zonal: backend returned no statistics for cell %s in %s", cell.ID, taskName(img, chunk))
		}
		bands := make(map[string]*float64, len(img.Product.Bands))
		for _, name := range img.Product.Bands {
			bands[name] = s.Means[name]
		}
		records = append(records, Record{
			CellID:   cell.ID,
			Date:     img.Date,
			Geometry: cell.Geometry,
			Bands:    bands,
		})
	}
	return records, nil
}

func taskName(img imagery.Image, chunk grid.Chunk) string {
	name := fmt.Sprintf("%s chunk %d", img.Product.Name, chunk.Index)
	if !img.Static() {
		name += " date " + img.Date
	}
	return name
}
