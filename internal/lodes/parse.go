package lodes

import (
	"strconv"
	"strings"
)

// Header aliases accepted for each logical column.
var (
	geocodeCols = []string{"w_geocode", "geoid", "geoid20", "block", "block_geoid"}
	naicsCols   = []string{"naics", "naics_code", "naics6"}
	jobsCols    = []string{"jobs", "emp", "employment"}
)

// mapColumns builds a lowercase column name → index map.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.ToLower(strings.Trim(strings.TrimSpace(col), `"`))
		// Excel writes a BOM before the first header.
		col = strings.TrimPrefix(col, "\ufeff")
		if _, dup := m[col]; !dup {
			m[col] = i
		}
	}
	return m
}

// findCol returns the index of the first alias present in colIdx, or -1.
func findCol(colIdx map[string]int, aliases []string) int {
	for _, a := range aliases {
		if i, ok := colIdx[a]; ok {
			return i
		}
	}
	return -1
}

// getCol returns record[idx] trimmed of whitespace and quotes, or "".
func getCol(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.Trim(strings.TrimSpace(record[idx]), `"`)
}

// parseCount parses a non-negative job count. Empty cells count as zero.
func parseCount(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// Some exports write integral counts as floats.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, false
		}
		v = int(f)
	}
	if v < 0 {
		return 0, false
	}
	return v, true
}
