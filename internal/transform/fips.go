package transform

import "strings"

// Census GEOID widths.
const (
	StateWidth  = 2
	CountyWidth = 5
	TractWidth  = 11
	BlockWidth  = 15
)

// NormalizeFIPSState normalizes a state FIPS code to 2 digits with zero-padding.
func NormalizeFIPSState(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if len(code) == 1 {
		return "0" + code
	}
	return code
}

// NormalizeFIPSCounty normalizes a county FIPS code to 3 digits with zero-padding.
func NormalizeFIPSCounty(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	for len(code) < 3 {
		code = "0" + code
	}
	return code
}

// CombineFIPS combines state and county FIPS codes into a 5-digit code.
func CombineFIPS(state, county string) string {
	s := NormalizeFIPSState(state)
	c := NormalizeFIPSCounty(county)
	if s == "" || c == "" {
		return ""
	}
	return s + c
}

// NormalizeBlockGEOID left-pads a block geocode to 15 digits. LODES files
// store w_geocode as a number, so leading zeros are lost for states < 10.
func NormalizeBlockGEOID(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	// Spreadsheet exports sometimes render the geocode as a float.
	code = strings.TrimSuffix(code, ".0")
	if len(code) >= BlockWidth {
		return code
	}
	return strings.Repeat("0", BlockWidth-len(code)) + code
}

// TractOf returns the 11-digit tract GEOID of a block GEOID.
func TractOf(geoid string) string {
	if len(geoid) < TractWidth {
		return ""
	}
	return geoid[:TractWidth]
}

// CountyOf returns the 5-digit county GEOID of a block GEOID.
func CountyOf(geoid string) string {
	if len(geoid) < CountyWidth {
		return ""
	}
	return geoid[:CountyWidth]
}

// FIPSCodes maps state abbreviation to 2-digit FIPS code for all 50 states + DC.
var FIPSCodes = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56",
}

// StateFIPS returns the FIPS code for a state abbreviation (case-insensitive).
func StateFIPS(abbr string) (string, bool) {
	fips, ok := FIPSCodes[strings.ToUpper(strings.TrimSpace(abbr))]
	return fips, ok
}
