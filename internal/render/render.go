// Package render writes the pipeline outputs: the sector summary table
// (CSV, XLSX, console), the interactive block map and the run manifest.
package render

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Default output file names under the output directory.
const (
	MapFile         = "lodes_block_map.html"
	SummaryCSVFile  = "sector_summary.csv"
	SummaryXLSXFile = "sector_summary.xlsx"
	TractCSVFile    = "tract_summary.csv"
	TractSectorFile = "tract_sectors.csv"
	ManifestFile    = "manifest.yaml"
)

// createFile creates path and any missing parent directories.
func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "render: create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "render: create %s", path)
	}
	return f, nil
}
