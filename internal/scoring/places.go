package scoring

import (
	"sort"
	"strings"
	"unicode"

	"github.com/openjobs/jobmatch/internal/features"
)

// Regions, keyed by folded name.
const (
	regionBrussels       = "bruxelles"
	regionBrabantWallon  = "brabant wallon"
	regionHainaut        = "hainaut"
	regionLiege          = "liege"
	regionLuxembourg     = "luxembourg"
	regionNamur          = "namur"
	regionFlemishBrabant = "brabant flamand"
	regionAntwerp        = "anvers"
	regionEastFlanders   = "flandre orientale"
	regionWestFlanders   = "flandre occidentale"
	regionLimburg        = "limbourg"
)

// belgianCities maps folded city names to their province.
var belgianCities = map[string]string{
	"bruxelles":         regionBrussels,
	"brussel":           regionBrussels,
	"brussels":          regionBrussels,
	"anderlecht":        regionBrussels,
	"ixelles":           regionBrussels,
	"schaerbeek":        regionBrussels,
	"uccle":             regionBrussels,
	"etterbeek":         regionBrussels,
	"evere":             regionBrussels,
	"woluwe":            regionBrussels,
	"wavre":             regionBrabantWallon,
	"nivelles":          regionBrabantWallon,
	"ottignies":         regionBrabantWallon,
	"louvain-la-neuve":  regionBrabantWallon,
	"waterloo":          regionBrabantWallon,
	"braine-l'alleud":   regionBrabantWallon,
	"tubize":            regionBrabantWallon,
	"jodoigne":          regionBrabantWallon,
	"charleroi":         regionHainaut,
	"mons":              regionHainaut,
	"tournai":           regionHainaut,
	"la louviere":       regionHainaut,
	"mouscron":          regionHainaut,
	"binche":            regionHainaut,
	"ath":               regionHainaut,
	"soignies":          regionHainaut,
	"chatelet":          regionHainaut,
	"fleurus":           regionHainaut,
	"liege":             regionLiege,
	"seraing":           regionLiege,
	"verviers":          regionLiege,
	"herstal":           regionLiege,
	"huy":               regionLiege,
	"waremme":           regionLiege,
	"eupen":             regionLiege,
	"spa":               regionLiege,
	"ans":               regionLiege,
	"arlon":             regionLuxembourg,
	"bastogne":          regionLuxembourg,
	"marche-en-famenne": regionLuxembourg,
	"libramont":         regionLuxembourg,
	"virton":            regionLuxembourg,
	"namur":             regionNamur,
	"dinant":            regionNamur,
	"gembloux":          regionNamur,
	"ciney":             regionNamur,
	"andenne":           regionNamur,
	"philippeville":     regionNamur,
	"leuven":            regionFlemishBrabant,
	"louvain":           regionFlemishBrabant,
	"vilvoorde":         regionFlemishBrabant,
	"antwerpen":         regionAntwerp,
	"anvers":            regionAntwerp,
	"mechelen":          regionAntwerp,
	"malines":           regionAntwerp,
	"gent":              regionEastFlanders,
	"gand":              regionEastFlanders,
	"aalst":             regionEastFlanders,
	"brugge":            regionWestFlanders,
	"bruges":            regionWestFlanders,
	"kortrijk":          regionWestFlanders,
	"courtrai":          regionWestFlanders,
	"oostende":          regionWestFlanders,
	"hasselt":           regionLimburg,
	"genk":              regionLimburg,
}

var regionAliases = map[string]string{
	"bruxelles-capitale":  regionBrussels,
	"brussels":            regionBrussels,
	"brabant wallon":      regionBrabantWallon,
	"hainaut":             regionHainaut,
	"province de liege":   regionLiege,
	"liege":               regionLiege,
	"luxembourg":          regionLuxembourg,
	"namur":               regionNamur,
	"brabant flamand":     regionFlemishBrabant,
	"vlaams-brabant":      regionFlemishBrabant,
	"anvers":              regionAntwerp,
	"antwerpen":           regionAntwerp,
	"flandre orientale":   regionEastFlanders,
	"oost-vlaanderen":     regionEastFlanders,
	"flandre occidentale": regionWestFlanders,
	"west-vlaanderen":     regionWestFlanders,
	"limbourg":            regionLimburg,
	"limburg":             regionLimburg,
}

// place is a folded location string padded with spaces so whole names can be
// found with a plain substring search.
type place string

func newPlace(s string) place {
	folded := features.FoldAccents(s)
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
	return place(" " + strings.Join(tokens, " ") + " ")
}

func (p place) empty() bool {
	return strings.TrimSpace(string(p)) == ""
}

func (p place) has(name string) bool {
	return strings.Contains(string(p), " "+name+" ")
}

// cities returns the known cities named in p, longest name first so that
// "louvain-la-neuve" wins over "louvain".
func (p place) cities() []string {
	var found []string
	for name := range belgianCities {
		if p.has(name) {
			found = append(found, name)
		}
	}
	sortLongestFirst(found)
	return found
}

// regions returns the provinces p names directly or through one of its cities.
func (p place) regions() map[string]struct{} {
	out := make(map[string]struct{})
	for alias, region := range regionAliases {
		if p.has(alias) {
			out[region] = struct{}{}
		}
	}
	for _, city := range p.cities() {
		out[belgianCities[city]] = struct{}{}
	}
	return out
}

func sortLongestFirst(names []string) {
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
}
