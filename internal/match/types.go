package match

// Column names shared by the input datasets and the result tables.
const (
	ColLabSampleID    = "Lab_SampleID"
	ColSampleAddress  = "SampleAddress"
	ColTownship       = "Township"
	ColRuralRoute     = "rr_addresses"
	ColAddress        = "ADDRESS_1"
	ColTwpCity        = "TWP_CITY"
	ColParcelTownship = "Parcel_Township"
	ColWellID         = "WELLID"
	ColUTME           = "UTME"
	ColUTMN           = "UTMN"
	ColDateDrilled    = "DATE_DRLL"
	ColVerified       = "Verified"
	ColIndexRight     = "index_right"
)

// Join suffixes for clashing column names.
const (
	mergeLeftSuffix  = "_x"
	mergeRightSuffix = "_y"
	sjoinLeftSuffix  = "_left"
	sjoinRightSuffix = "_right"
)

// LocatedColumns are kept for samples matched to exactly one parcel. The
// geometry travels with each row.
var LocatedColumns = []string{ColLabSampleID, ColRuralRoute, ColAddress, ColParcelTownship}

// WellMatchColumns are kept for samples matched to exactly one well.
var WellMatchColumns = []string{ColLabSampleID, ColRuralRoute, ColUTME, ColUTMN, ColWellID, ColVerified, ColDateDrilled}

// Counts are the figures reported at the end of a run.
type Counts struct {
	Samples          int // rows in the sample table
	WithRuralRoute   int // samples carrying a rural-route key
	LocatedMany      int // sample/parcel pairs passing the township filter
	LocatedExactly   int // samples matching exactly one parcel
	WellMatches      int // sample/well pairs surviving the drill-year filter
	WellMatchesExact int // samples matching exactly one well
}
