// Package lodes reads LEHD Origin-Destination Employment Statistics (LODES)
// Workplace Area Characteristics files at census block level.
package lodes

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel errors returned by Load. Match with errors.Is.
var (
	// ErrMissingKey means the file has no block geocode column to join on.
	ErrMissingKey = eris.New("lodes: block geocode column not found")
	// ErrSchema means the header matches neither the WAC nor the long layout,
	// or a cell could not be parsed as a job count.
	ErrSchema = eris.New("lodes: schema mismatch")
	// ErrNoArea means the file has rows but none inside the requested area,
	// usually a state file that does not match the configured FIPS codes.
	ErrNoArea = eris.New("lodes: no rows in requested area")
)

// Format identifies the layout of an input file.
type Format string

const (
	// FormatWAC is the published wide layout: one row per block with C000 and
	// CNS01..CNS20 columns.
	FormatWAC Format = "wac"
	// FormatLong is one row per (block, detailed NAICS code) observation.
	FormatLong Format = "long"
)

// Row is a single job count attributed to a block and an industry code.
type Row struct {
	GEOID string
	NAICS string
	Jobs  int
}

// Table is the parsed content of a LODES file, restricted to one county.
type Table struct {
	Format Format
	Rows   []Row
	// Totals holds the raw total employment per block. For WAC files this is
	// C000; for long files it is the sum of the block's rows. Blocks with zero
	// employment are present with a zero total.
	Totals map[string]int
	// Skipped counts rows outside the requested county.
	Skipped int
}

// Blocks returns the number of distinct blocks in the table.
func (t *Table) Blocks() int { return len(t.Totals) }

// TotalJobs sums the raw block totals.
func (t *Table) TotalJobs() int {
	var n int
	for _, v := range t.Totals {
		n += v
	}
	return n
}

// FileName returns the published LODES WAC file name,
// e.g. ca_wac_S000_JT00_2021.csv.gz.
func FileName(state, segment, jobType string, year int) string {
	return fmt.Sprintf("%s_wac_%s_%s_%d.csv.gz", strings.ToLower(state), segment, jobType, year)
}

// DownloadURL builds the LEHD download URL for a WAC file.
func DownloadURL(baseURL, version, state, segment, jobType string, year int) string {
	return fmt.Sprintf("%s/%s/%s/wac/%s",
		strings.TrimRight(baseURL, "/"), version, strings.ToLower(state),
		FileName(state, segment, jobType, year))
}
