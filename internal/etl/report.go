package etl

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/rr-wellmatch/internal/match"
)

// Summary is the outcome of a run.
type Summary struct {
	RunID    string
	Township string
	match.Counts
	Outputs []string
	Elapsed time.Duration
}

// Fields renders the counts as structured log fields.
func (s *Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.String("township", s.Township),
		zap.Int("samples", s.Samples),
		zap.Int("with_rural_route", s.WithRuralRoute),
		zap.Int("at_least_one_parcel", s.LocatedMany),
		zap.Int("exactly_one_parcel", s.LocatedExactly),
		zap.Int("at_least_one_well", s.WellMatches),
		zap.Int("exactly_one_well", s.WellMatchesExact),
		zap.Int("outputs", len(s.Outputs)),
		zap.Duration("elapsed", s.Elapsed),
	}
}

// Render prints the counts as a table.
func (s *Summary) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Measure", "Count"})
	t.AppendRow(table.Row{"samples provided", s.Samples})
	t.AppendRow(table.Row{"samples with valid RR address", s.WithRuralRoute})
	if len(s.Outputs) > 0 {
		t.AppendRow(table.Row{"samples matching at least one parcel", s.LocatedMany})
		t.AppendRow(table.Row{"samples matching exactly one parcel", s.LocatedExactly})
		t.AppendRow(table.Row{"matches with at least one well", s.WellMatches})
		t.AppendRow(table.Row{"matches with exactly one well", s.WellMatchesExact})
	}
	if s.RunID != "" {
		t.SetCaption("run %s, township %s", s.RunID, s.Township)
	}
	t.Render()
}
