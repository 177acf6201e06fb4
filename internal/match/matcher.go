// Package match links samples to parcels by rural-route address and parcels
// to wells by spatial intersection.
package match

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rr-wellmatch/internal/dataset"
)

// Result table names, also used as output file stems.
const (
	TableLocatedMany           = "located_many"
	TableLocatedSamples        = "located_samples"
	TableSampleWellMatch       = "sample_well_match"
	TableUniqueSampleWellMatch = "unique_sample_well_match"
)

// Matcher runs the two join-and-filter stages for one township.
type Matcher struct {
	township   string
	targetSRID int
	log        *zap.Logger
}

// New creates a Matcher. Located parcels are reprojected to targetSRID.
func New(township string, targetSRID int, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{township: township, targetSRID: targetSRID, log: log}
}

// LocateMany joins samples carrying a rural-route key to parcels with the
// same ADDRESS_1, keeps pairs whose parcel township equals the sample
// township and reprojects the result to the target spatial reference.
// A sample may appear many times.
func (m *Matcher) LocateMany(parcels, samples *dataset.Table) (*dataset.Table, error) {
	if err := samples.Require(ColRuralRoute, ColTownship); err != nil {
		return nil, err
	}
	if err := parcels.Require(ColAddress, ColParcelTownship); err != nil {
		return nil, err
	}

	keyed := samples.Filter(func(i int) bool { return samples.Value(i, ColRuralRoute) != nil })
	merged, err := Merge(TableLocatedMany, parcels, keyed, ColAddress, ColRuralRoute)
	if err != nil {
		return nil, fmt.Errorf("failed to join samples to parcels: %w", err)
	}

	parcelTwp := resolved(merged, parcels, ColParcelTownship, mergeLeftSuffix)
	sampleTwp := resolved(merged, keyed, ColTownship, mergeRightSuffix)
	located := merged.Filter(func(i int) bool {
		p, pok := merged.Text(i, parcelTwp)
		s, sok := merged.Text(i, sampleTwp)
		return pok && sok && p == s
	})

	m.log.Debug("samples joined to parcels",
		zap.Int("pairs", merged.Len()),
		zap.Int("in_township", located.Len()),
		zap.String("township", m.township))

	out, err := located.Reproject(m.targetSRID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LocatedSamples narrows located pairs to the located columns and drops
// every sample that matched more than one parcel.
func (m *Matcher) LocatedSamples(many *dataset.Table) (*dataset.Table, error) {
	narrow, err := many.Select(LocatedColumns...)
	if err != nil {
		return nil, fmt.Errorf("failed to select located columns: %w", err)
	}
	return ExactlyOne(narrow.Rename(TableLocatedSamples), ColLabSampleID)
}

// MatchWells pairs located samples with every well inside their parcel.
// Wells must already be in the target spatial reference.
func (m *Matcher) MatchWells(located, wells *dataset.Table) (*dataset.Table, error) {
	joined, err := SpatialJoin(TableSampleWellMatch, located, wells)
	if err != nil {
		return nil, fmt.Errorf("failed to join parcels to wells: %w", err)
	}
	m.log.Debug("parcels joined to wells", zap.Int("pairs", joined.Len()))
	return joined, nil
}

// UniqueWellMatches narrows drill-year-consistent pairs to the well match
// columns and drops every sample that matched more than one well.
func (m *Matcher) UniqueWellMatches(matches *dataset.Table) (*dataset.Table, error) {
	narrow, err := matches.Select(WellMatchColumns...)
	if err != nil {
		return nil, fmt.Errorf("failed to select well match columns: %w", err)
	}
	return ExactlyOne(narrow.Rename(TableUniqueSampleWellMatch), ColLabSampleID)
}

// FilterDrillYear keeps pairs whose sample year is not before the well's
// drill year. Both years are the first four characters of the values'
// text and are compared as strings, so an unknown drill date of 0 always
// passes.
func FilterDrillYear(t *dataset.Table) (*dataset.Table, error) {
	if err := t.Require(ColLabSampleID, ColDateDrilled); err != nil {
		return nil, err
	}
	return t.Filter(func(i int) bool {
		id := t.Value(i, ColLabSampleID)
		if id == nil {
			return false
		}
		return SampleYear(id) >= DrillYear(t.Value(i, ColDateDrilled))
	}), nil
}

// SampleYear is the year prefix of a Lab_SampleID.
func SampleYear(labSampleID any) string {
	return dataset.Prefix(dataset.Format(labSampleID), 4)
}

// DrillYear is the year prefix of a DATE_DRLL value rendered as text.
func DrillYear(dateDrilled any) string {
	return dataset.Prefix(dataset.Format(dateDrilled), 4)
}

// ExactlyOne keeps the rows whose value in column occurs exactly once.
// Missing values form a group of their own.
func ExactlyOne(t *dataset.Table, column string) (*dataset.Table, error) {
	if err := t.Require(column); err != nil {
		return nil, err
	}
	groups := NewGroupIndex(t, column)
	// A singleton group is first seen at its only row, so group order is
	// row order here.
	keep := make([]int, 0, groups.Len())
	for n := 0; n < groups.Len(); n++ {
		if rows := groups.Rows(n); len(rows) == 1 {
			keep = append(keep, rows[0])
		}
	}
	return t.Pick(keep), nil
}

// resolved returns the merged name of a column contributed by src.
func resolved(merged, src *dataset.Table, name, suffix string) string {
	if merged.Has(name) {
		return name
	}
	if src.Has(name) && merged.Has(name+suffix) {
		return name + suffix
	}
	return name
}
