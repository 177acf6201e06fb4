package normalize

import (
	"iter"
	"regexp"
	"strings"
)

// Rural route key as it appears on parcels: "RR 2 BOX 45" or "RT 2 BOX 45".
// Case-sensitive, single spaces, digit groups kept verbatim.
var reRuralRoute = regexp.MustCompile(`R[RT] \d+ BOX \d+`)

// TownshipSuffix is stripped from parcel TWP_CITY values before comparing
// against the sample township.
const TownshipSuffix = " TOWNSHIP"

// Token is the rural-route key pulled from a single address.
// OK is false when the address carries no rural-route key.
type Token struct {
	Value string
	OK    bool
}

// ExtractRuralRoute returns the first rural-route key in raw.
func ExtractRuralRoute(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	m := reRuralRoute.FindString(raw)
	if m == "" {
		return "", false
	}
	return m, true
}

// RuralRoutes yields one Token per address, in input order. The sequence is
// evaluated lazily and may be ranged over more than once.
func RuralRoutes(addresses iter.Seq[string]) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		for addr := range addresses {
			v, ok := ExtractRuralRoute(addr)
			if !yield(Token{Value: v, OK: ok}) {
				return
			}
		}
	}
}

// StripTownshipSuffix turns "ELM TOWNSHIP" into "ELM". Values without the
// exact suffix are returned unchanged.
func StripTownshipSuffix(twpCity string) string {
	return strings.TrimSuffix(twpCity, TownshipSuffix)
}
