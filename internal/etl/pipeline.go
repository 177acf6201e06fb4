// Package etl wires loading, matching and export into a single run.
package etl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rr-wellmatch/internal/config"
	"github.com/rr-wellmatch/internal/dataset"
	"github.com/rr-wellmatch/internal/export"
	"github.com/rr-wellmatch/internal/logging"
	"github.com/rr-wellmatch/internal/match"
)

// Pipeline runs the sample to parcel to well matching for one configuration.
type Pipeline struct {
	cfg     *config.Config
	log     *zap.Logger
	writer  *export.Writer
	matcher *match.Matcher
}

// NewPipeline creates a pipeline. publisher may be nil.
func NewPipeline(cfg *config.Config, log *zap.Logger, publisher export.Publisher) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg:     cfg,
		log:     log,
		writer:  export.NewWriter(cfg.Output, log, publisher),
		matcher: match.New(cfg.Township, cfg.TargetSRID, log),
	}
}

// Run executes every stage and writes all result tables.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Township: p.cfg.Township}

	if err := p.cfg.EnsureOutputDir(); err != nil {
		return nil, err
	}

	// Step 1: Parcels and wells
	done := logging.Timing(p.log, "load parcels")
	parcels, err := LoadParcels(ctx, p.cfg.Parcels)
	if err != nil {
		return nil, err
	}
	done()

	done = logging.Timing(p.log, "load wells")
	wells, err := LoadWells(ctx, p.cfg.VerifiedWells, p.cfg.UnverifiedWells)
	if err != nil {
		return nil, err
	}
	done()
	if err := p.save(ctx, summary, wells); err != nil {
		return nil, err
	}

	// Step 2: Samples and their rural-route keys
	done = logging.Timing(p.log, "load samples")
	samples, err := LoadSamples(ctx, p.cfg.Samples)
	if err != nil {
		return nil, err
	}
	done()
	summary.Samples = samples.Len()
	summary.WithRuralRoute = CountRuralRoutes(samples)
	p.log.Info("samples loaded",
		zap.Int("samples", summary.Samples),
		zap.Int("with_rural_route", summary.WithRuralRoute))

	// Step 3: Samples to parcels
	done = logging.Timing(p.log, "match parcels")
	many, err := p.matcher.LocateMany(parcels, samples)
	if err != nil {
		return nil, err
	}
	summary.LocatedMany = many.Len()
	if err := p.save(ctx, summary, many); err != nil {
		return nil, err
	}
	located, err := p.matcher.LocatedSamples(many)
	if err != nil {
		return nil, err
	}
	summary.LocatedExactly = located.Len()
	done()
	p.log.Info("samples located",
		zap.Int("at_least_one_parcel", summary.LocatedMany),
		zap.Int("exactly_one_parcel", summary.LocatedExactly))

	// Step 4: Parcels to wells
	done = logging.Timing(p.log, "match wells")
	aligned := wells
	if wells.SRID != p.cfg.TargetSRID {
		if aligned, err = wells.Reproject(p.cfg.TargetSRID); err != nil {
			return nil, err
		}
	}
	pairs, err := p.matcher.MatchWells(located, aligned)
	if err != nil {
		return nil, err
	}
	if err := p.save(ctx, summary, pairs); err != nil {
		return nil, err
	}
	consistent, err := match.FilterDrillYear(pairs)
	if err != nil {
		return nil, err
	}
	summary.WellMatches = consistent.Len()
	unique, err := p.matcher.UniqueWellMatches(consistent)
	if err != nil {
		return nil, err
	}
	summary.WellMatchesExact = unique.Len()
	done()

	// Step 5: Final tables
	if err := p.save(ctx, summary, unique); err != nil {
		return nil, err
	}
	if err := p.writer.SaveCSV(unique); err != nil {
		return nil, err
	}
	summary.Outputs = append(summary.Outputs, p.cfg.OutputPath(unique.Name, ".csv"))
	if err := p.save(ctx, summary, located); err != nil {
		return nil, err
	}

	summary.Elapsed = time.Since(start)
	p.log.Info("run complete", summary.Fields()...)
	return summary, nil
}

// Extract loads the samples only and reports how many carry a rural-route
// key. Nothing is written.
func (p *Pipeline) Extract(ctx context.Context) (*Summary, error) {
	start := time.Now()
	samples, err := LoadSamples(ctx, p.cfg.Samples)
	if err != nil {
		return nil, err
	}
	summary := &Summary{
		Township: p.cfg.Township,
		Counts: match.Counts{
			Samples:        samples.Len(),
			WithRuralRoute: CountRuralRoutes(samples),
		},
		Elapsed: time.Since(start),
	}
	p.log.Info("extraction complete", summary.Fields()...)
	return summary, nil
}

func (p *Pipeline) save(ctx context.Context, summary *Summary, t *dataset.Table) error {
	if err := p.writer.Save(ctx, t); err != nil {
		return fmt.Errorf("stage %s: %w", t.Name, err)
	}
	summary.Outputs = append(summary.Outputs, p.cfg.OutputPath(t.Name, ".gpkg"))
	return nil
}
