// Package transform normalises Census identifiers and maps NAICS codes onto
// the 2-digit sectors used by the LODES CNS columns.
package transform

import (
	"strings"
)

// UnclassifiedCode is the pseudo-sector for codes with no valid 2-digit prefix
// and for jobs suppressed out of the CNS breakdown.
const UnclassifiedCode = "99"

// Sector is a NAICS 2-digit sector as published in LODES WAC files.
type Sector struct {
	Code     string   // "54", or "31-33" for multi-prefix sectors
	Name     string   // short display name
	Title    string   // official NAICS title
	CNS      string   // LODES column, e.g. "CNS12"
	Color    string   // map color, hex
	Prefixes []string // 2-digit NAICS prefixes rolling up into this sector
}

// Sectors lists the 20 LODES sectors in CNS column order.
var Sectors = []Sector{
	{Code: "11", Name: "Agriculture", CNS: "CNS01", Color: "#27ae60", Prefixes: []string{"11"}},
	{Code: "21", Name: "Mining", CNS: "CNS02", Color: "#95a5a6", Prefixes: []string{"21"}},
	{Code: "22", Name: "Utilities", CNS: "CNS03", Color: "#34495e", Prefixes: []string{"22"}},
	{Code: "23", Name: "Construction", CNS: "CNS04", Color: "#c0392b", Prefixes: []string{"23"}},
	{Code: "31-33", Name: "Manufacturing", CNS: "CNS05", Color: "#e67e22", Prefixes: []string{"31", "32", "33"}},
	{Code: "42", Name: "Wholesale Trade", CNS: "CNS06", Color: "#229954", Prefixes: []string{"42"}},
	{Code: "44-45", Name: "Retail Trade", CNS: "CNS07", Color: "#3498db", Prefixes: []string{"44", "45"}},
	{Code: "48-49", Name: "Transportation", CNS: "CNS08", Color: "#16a085", Prefixes: []string{"48", "49"}},
	{Code: "51", Name: "Information", CNS: "CNS09", Color: "#f15a22", Prefixes: []string{"51"}},
	{Code: "52", Name: "Finance", CNS: "CNS10", Color: "#2c3e50", Prefixes: []string{"52"}},
	{Code: "53", Name: "Real Estate", CNS: "CNS11", Color: "#8e44ad", Prefixes: []string{"53"}},
	{Code: "54", Name: "Professional Services", CNS: "CNS12", Color: "#9b59b6", Prefixes: []string{"54"}},
	{Code: "55", Name: "Management", CNS: "CNS13", Color: "#6c5ce7", Prefixes: []string{"55"}},
	{Code: "56", Name: "Admin Support", CNS: "CNS14", Color: "#f39c12", Prefixes: []string{"56"}},
	{Code: "61", Name: "Education", CNS: "CNS15", Color: "#1abc9c", Prefixes: []string{"61"}},
	{Code: "62", Name: "Healthcare", CNS: "CNS16", Color: "#2ecc71", Prefixes: []string{"62"}},
	{Code: "71", Name: "Arts/Entertainment", CNS: "CNS17", Color: "#e74c3c", Prefixes: []string{"71"}},
	{Code: "72", Name: "Accommodation/Food", CNS: "CNS18", Color: "#f1c40f", Prefixes: []string{"72"}},
	{Code: "81", Name: "Other Services", CNS: "CNS19", Color: "#bdc3c7", Prefixes: []string{"81"}},
	{Code: "92", Name: "Public Admin", CNS: "CNS20", Color: "#7f8c8d", Prefixes: []string{"92"}},
}

// Unclassified is the catch-all sector. It sorts after every real sector.
var Unclassified = Sector{
	Code:  UnclassifiedCode,
	Name:  "Unclassified",
	Title: "Unclassified or suppressed",
	Color: "#555555",
}

var (
	byCode   = make(map[string]int, len(Sectors))
	byCNS    = make(map[string]int, len(Sectors))
	byPrefix = make(map[string]int, 25)
)

func init() {
	for i := range Sectors {
		s := &Sectors[i]
		s.Title = NAICSTitles[s.Prefixes[0]]
		byCode[s.Code] = i
		byCNS[s.CNS] = i
		for _, p := range s.Prefixes {
			byPrefix[p] = i
		}
	}
}

// NormalizeNAICS trims whitespace and trailing dashes ("5221--" → "5221").
// Returns "" for empty or placeholder codes.
func NormalizeNAICS(code string) string {
	code = strings.TrimSpace(code)
	code = strings.TrimRight(code, "-")
	if code == "" {
		return ""
	}
	return code
}

// NAICSToSector returns the 2-digit prefix of a NAICS code, or "" when the
// code is shorter than two characters or not numeric.
func NAICSToSector(code string) string {
	code = NormalizeNAICS(code)
	if len(code) < 2 {
		return ""
	}
	p := code[:2]
	if p[0] < '0' || p[0] > '9' || p[1] < '0' || p[1] > '9' {
		return ""
	}
	return p
}

// SectorForNAICS maps a detailed NAICS code (2 to 6 digits) to its sector.
// Hyphenated sector codes such as "31-33" are accepted as-is.
func SectorForNAICS(code string) (Sector, bool) {
	if i, ok := byCode[strings.TrimSpace(code)]; ok {
		return Sectors[i], true
	}
	i, ok := byPrefix[NAICSToSector(code)]
	if !ok {
		return Sector{}, false
	}
	return Sectors[i], true
}

// SectorForCNS maps a LODES column name ("CNS12", case-insensitive) to its sector.
func SectorForCNS(col string) (Sector, bool) {
	i, ok := byCNS[strings.ToUpper(strings.TrimSpace(col))]
	if !ok {
		return Sector{}, false
	}
	return Sectors[i], true
}

// SectorByCode looks up a sector by its code, including the unclassified bucket.
func SectorByCode(code string) (Sector, bool) {
	if code == UnclassifiedCode {
		return Unclassified, true
	}
	i, ok := byCode[code]
	if !ok {
		return Sector{}, false
	}
	return Sectors[i], true
}

// SectorOrder returns the catalogue position of a sector code. Unknown codes
// and the unclassified bucket sort last.
func SectorOrder(code string) int {
	if i, ok := byCode[code]; ok {
		return i
	}
	return len(Sectors)
}

// IsCNSColumn reports whether a header names one of the 20 CNS columns.
func IsCNSColumn(col string) bool {
	_, ok := byCNS[strings.ToUpper(strings.TrimSpace(col))]
	return ok
}
