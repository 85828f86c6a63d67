package store

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/psddp/internal/logging"
)

// Countries maps a store country to its "language/country" path. China,
// the Philippines, Serbia and Vietnam have no store and are not listed.
var Countries = map[string]string{
	"Argentina":            "en/ar",
	"Australia":            "en/au",
	"Austria":              "de/at",
	"Bahrain":              "en/ae",
	"Belgium":              "fr/be",
	"Brazil":               "en/br",
	"Bulgaria":             "en/bg",
	"Canada":               "en/ca",
	"Chile":                "en/cl",
	"Columbia":             "en/co",
	"Costa Rica":           "es/cr",
	"Croatia":              "en/hr",
	"Cyprus":               "en/cy",
	"Czech Republic":       "en/cz",
	"Denmark":              "en/dk",
	"Ecuador":              "es/ec",
	"El Salvador":          "es/sv",
	"Finland":              "en/fi",
	"France":               "fr/fr",
	"Germany":              "de/de",
	"Greece":               "en/gr",
	"Guatemala":            "es/gt",
	"Honduras":             "es/hn",
	"Hong Kong":            "en/hk",
	"Hungary":              "en/hu",
	"Iceland":              "en/is",
	"India":                "en/in",
	"Indonesia":            "en/id",
	"Ireland":              "en/ie",
	"Israel":               "en/il",
	"Italy":                "it/it",
	"Japan":                "ja/jp",
	"Korea":                "ko/kr",
	"Kuwait":               "en/ae",
	"Lebanon":              "en/ae",
	"Luxembourg":           "de/lu",
	"Maylasia":             "en/my",
	"Malta":                "en/mt",
	"Mexico":               "en/mx",
	"Middle East":          "en/ae",
	"Nederland":            "nl/nl",
	"New Zealand":          "en/nz",
	"Nicaragua":            "es/ni",
	"Norway":               "en/no",
	"Oman":                 "en/ae",
	"Panama":               "es/pa",
	"Peru":                 "en/pe",
	"Poland":               "en/pl",
	"Portugal":             "pt/pt",
	"Qatar":                "en/ae",
	"Romania":              "en/ro",
	"Russia":               "ru/ru",
	"Saudi Arabia":         "en/sa",
	"Singapore":            "en/sg",
	"Slovenia":             "en/si",
	"Slovakia":             "en/sk",
	"South Africa":         "en/za",
	"Spain":                "es/es",
	"Sweden":               "en/se",
	"Switzerland":          "de/ch",
	"Taiwan":               "en/tw",
	"Thailand":             "en/th",
	"Turkey":               "en/tr",
	"Ukraine":              "ru/ua",
	"United Arab Emirates": "en/ae",
	"United States":        "en/us",
	"United Kingdom":       "en/gb",
}

// deprecatedRegions are the old numbered region codes, still accepted
var deprecatedRegions = map[string]string{
	"R1": "en/us",
	"R2": "en/gb",
	"R3": "en/hk",
	"R4": "en/au",
	"R5": "en/in",
}

// RegionCodes returns the language and country codes for a store region.
// Deprecated R1-R5 codes are accepted with a warning.
func RegionCodes(region string) (lang, country string, err error) {
	path, ok := Countries[region]
	if !ok {
		path, ok = deprecatedRegions[region]
		if !ok {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownRegion, region)
		}
		logging.Warn("Store region is deprecated", zap.String("region", region))
	}
	lang, country, _ = strings.Cut(path, "/")
	return lang, country, nil
}

// Regions returns every supported country name, sorted.
func Regions() []string {
	names := make([]string, 0, len(Countries))
	for name := range Countries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
