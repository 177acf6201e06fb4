package etl

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	"github.com/rr-wellmatch/internal/dataset"
	"github.com/rr-wellmatch/internal/gpkg"
	"github.com/rr-wellmatch/internal/match"
	"github.com/rr-wellmatch/internal/normalize"
)

// Required input columns.
var (
	ParcelColumns = []string{match.ColAddress, match.ColTwpCity}
	WellColumns   = []string{match.ColWellID, match.ColUTME, match.ColUTMN, match.ColDateDrilled}
	SampleColumns = []string{match.ColLabSampleID, match.ColSampleAddress, match.ColTownship}
)

// ReadDataset loads a file, choosing the reader from its extension.
func ReadDataset(ctx context.Context, name, path string) (*dataset.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpkg":
		return gpkg.Read(ctx, name, path, "")
	case ".geojson", ".json":
		return dataset.ReadGeoJSON(name, path)
	case ".csv":
		return dataset.ReadCSV(name, path)
	case ".xlsx":
		return dataset.ReadXLSX(name, path)
	default:
		return nil, fmt.Errorf("%s: %w", path, dataset.ErrUnsupportedFormat)
	}
}

func readGeospatial(ctx context.Context, name, path string) (*dataset.Table, error) {
	t, err := ReadDataset(ctx, name, path)
	if err != nil {
		return nil, err
	}
	if !t.Geospatial {
		return nil, fmt.Errorf("%s: %w", path, dataset.ErrMissingGeometry)
	}
	return t, nil
}

// LoadParcels reads the parcel layer and derives Parcel_Township from
// TWP_CITY.
func LoadParcels(ctx context.Context, path string) (*dataset.Table, error) {
	parcels, err := readGeospatial(ctx, "parcels", path)
	if err != nil {
		return nil, fmt.Errorf("failed to load parcels: %w", err)
	}
	if err := parcels.Require(ParcelColumns...); err != nil {
		return nil, err
	}

	parcels.SetColumn(dataset.Column{Name: match.ColParcelTownship, Kind: dataset.KindText}, func(i int) any {
		twp, ok := parcels.Text(i, match.ColTwpCity)
		if !ok {
			return nil
		}
		return normalize.StripTownshipSuffix(twp)
	})
	return parcels, nil
}

// LoadWells reads both well layers, tags them with Verified and stacks
// verified rows above unverified ones. The unverified layer is reprojected
// to the verified layer's spatial reference when they differ.
func LoadWells(ctx context.Context, verifiedPath, unverifiedPath string) (*dataset.Table, error) {
	verified, err := loadWellLayer(ctx, "verified_wells", verifiedPath, true)
	if err != nil {
		return nil, err
	}
	unverified, err := loadWellLayer(ctx, "unverified_wells", unverifiedPath, false)
	if err != nil {
		return nil, err
	}

	if unverified.SRID != verified.SRID {
		if unverified, err = unverified.Reproject(verified.SRID); err != nil {
			return nil, fmt.Errorf("failed to align well layers: %w", err)
		}
	}

	wells, err := dataset.Concat("wells", verified, unverified)
	if err != nil {
		return nil, fmt.Errorf("failed to combine well layers: %w", err)
	}
	return wells, nil
}

func loadWellLayer(ctx context.Context, name, path string, verified bool) (*dataset.Table, error) {
	t, err := readGeospatial(ctx, name, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	if err := t.Require(WellColumns...); err != nil {
		return nil, err
	}
	t.SetColumn(dataset.Column{Name: match.ColVerified, Kind: dataset.KindBool}, func(int) any { return verified })
	return t, nil
}

// LoadSamples reads the sample table and adds rr_addresses, the rural-route
// key found in each SampleAddress (missing when there is none).
func LoadSamples(ctx context.Context, path string) (*dataset.Table, error) {
	samples, err := ReadDataset(ctx, "samples", path)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples: %w", err)
	}
	if err := samples.Require(SampleColumns...); err != nil {
		return nil, err
	}

	tokens := make([]any, 0, samples.Len())
	for tok := range normalize.RuralRoutes(sampleAddresses(samples)) {
		if tok.OK {
			tokens = append(tokens, tok.Value)
		} else {
			tokens = append(tokens, nil)
		}
	}
	samples.SetColumn(dataset.Column{Name: match.ColRuralRoute, Kind: dataset.KindText}, func(i int) any {
		return tokens[i]
	})
	return samples, nil
}

func sampleAddresses(samples *dataset.Table) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := range samples.Rows {
			addr, _ := samples.Text(i, match.ColSampleAddress)
			if !yield(addr) {
				return
			}
		}
	}
}

// CountRuralRoutes is the number of samples carrying a rural-route key.
func CountRuralRoutes(samples *dataset.Table) int {
	n := 0
	for i := range samples.Rows {
		if samples.Value(i, match.ColRuralRoute) != nil {
			n++
		}
	}
	return n
}
