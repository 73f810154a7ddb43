// Package baseline estimates the per-date rural reference LST from a
// buffer ring around the urban footprint.
package baseline

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/uhi-lab/heatgrid/internal/imagery"
	"github.com/uhi-lab/heatgrid/internal/resilience"
)

// Table maps an observation date (YYYY-MM-DD) to the mean rural LST
// for that date. Dates with no valid rural pixel are absent, never
// zero.
type Table map[string]float64

// Reference returns the rural LST for a date and whether one exists.
func (t Table) Reference(date string) (float64, bool) {
	v, ok := t[date]
	return v, ok
}

// Estimator computes rural reference temperatures against the imagery
// backend.
type Estimator struct {
	backend       imagery.Backend
	retry         resilience.Config
	maxCloudCover float64
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithRetry overrides the retry policy for backend calls.
func WithRetry(cfg resilience.Config) Option {
	return func(e *Estimator) {
		e.retry = cfg
	}
}

// WithMaxCloudCover overrides the scene cloud-cover ceiling.
func WithMaxCloudCover(pct float64) Option {
	return func(e *Estimator) {
		e.maxCloudCover = pct
	}
}

// New creates an Estimator over the given backend.
func New(backend imagery.Backend, opts ...Option) *Estimator {
	e := &Estimator{
		backend:       backend,
		retry:         resilience.DefaultConfig(),
		maxCloudCover: 10,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate builds the per-date rural reference table for a year. The
// rural region is the ring within bufferKM kilometers of urbanGeom but
// outside it; pixels count only when their land-cover class is in the
// non-urban whitelist of the vintage nearest the year. A date appears
// in the result only when the masked mean is defined.
func (e *Estimator) Estimate(ctx context.Context, urbanGeom geom.T, bufferKM float64, year int) (Table, error) {
	if urbanGeom == nil {
		return nil, eris.New("baseline: urban geometry is required")
	}
	if bufferKM <= 0 {
		return nil, eris.Errorf("baseline: buffer must be positive, got %v km", bufferKM)
	}

	log := zap.L().With(
		zap.String("component", "baseline"),
		zap.Int("year", year),
		zap.Float64("buffer_km", bufferKM),
	)

	bufferM := bufferKM * 1000
	mask := imagery.WorldCoverMask(year)
	ring := imagery.RingRegion{
		Center:        urbanGeom,
		BufferMeters:  bufferM,
		ExcludeCenter: true,
	}

	query := imagery.LandsatQuery(urbanGeom, year, e.maxCloudCover)
	query.BufferMeters = bufferM

	scenes, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) ([]imagery.Scene, error) {
		return e.backend.Scenes(ctx, query)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "baseline: list scenes for year %d", year)
	}

	table := make(Table)
	skipped := 0
	for _, scene := range scenes {
		img := imagery.LSTImage(scene)

		retry := e.retry
		if retry.OnRetry == nil {
			retry.OnRetry = resilience.Logger("baseline", "date "+scene.Date)
		}
		means, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (map[string]*float64, error) {
			return e.backend.MaskedRegionMean(ctx, img, ring, mask, imagery.BaselineScale, imagery.BaselineMaxPixels)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "baseline: rural mean for date %s", scene.Date)
		}

		mean := means[imagery.BandLST]
		if mean == nil {
			skipped++
			log.Debug("no valid rural pixels", zap.String("date", scene.Date))
			continue
		}
		// Scenes arrive in time order; the first scene wins when two
		// share a date.
		if _, exists := table[scene.Date]; exists {
			continue
		}
		table[scene.Date] = *mean
	}

	log.Info("rural baseline estimated",
		zap.Int("scenes", len(scenes)),
		zap.Int("dates", len(table)),
		zap.Int("skipped", skipped),
	)
	return table, nil
}
