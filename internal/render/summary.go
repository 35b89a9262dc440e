package render

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/lodes-map/internal/aggregate"
)

// EncodeSummaryCSV writes the sector table as CSV with a header row.
func EncodeSummaryCSV(w io.Writer, rows []aggregate.SummaryRow) error {
	return encodeCSV(w, rows)
}

// WriteSummaryCSV writes the sector table to path.
func WriteSummaryCSV(path string, rows []aggregate.SummaryRow) error {
	return writeCSV(path, rows)
}

// EncodeTractCSV writes one row per tract with its dominant sector.
func EncodeTractCSV(w io.Writer, rows []aggregate.TractRow) error {
	return encodeCSV(w, rows)
}

// WriteTractCSV writes the tract table to path.
func WriteTractCSV(path string, rows []aggregate.TractRow) error {
	return writeCSV(path, rows)
}

// WriteTractSectorsCSV writes per-tract sector jobs and location quotients.
func WriteTractSectorsCSV(path string, rows []aggregate.TractSectorRow) error {
	return writeCSV(path, rows)
}

// encodeCSV writes rows with a header; an empty table still gets its header.
func encodeCSV[T any](w io.Writer, rows []T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		var zero T
		if err := enc.EncodeHeader(zero); err != nil {
			return eris.Wrap(err, "render: encode csv header")
		}
	}
	for i, r := range rows {
		if err := enc.Encode(r); err != nil {
			return eris.Wrapf(err, "render: encode csv row %d", i+1)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "render: flush csv")
}

func writeCSV[T any](path string, rows []T) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if err := encodeCSV(f, rows); err != nil {
		return err
	}
	return eris.Wrapf(f.Close(), "render: close %s", path)
}

var xlsxHeader = []string{"NAICS", "Sector", "Total Jobs", "Blocks", "Dominant Blocks", "% of Total"}

// WriteSummaryXLSX writes the sector table as a single-sheet workbook.
func WriteSummaryXLSX(path string, rows []aggregate.SummaryRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sectors")
	if err != nil {
		return eris.Wrap(err, "render: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Code)
		row.AddCell().SetString(r.Sector)
		row.AddCell().SetInt(r.TotalJobs)
		row.AddCell().SetInt(r.Blocks)
		row.AddCell().SetInt(r.DominantBlocks)
		row.AddCell().SetFloat(r.PctOfTotal)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "render: create directory for %s", path)
	}
	return eris.Wrapf(f.Save(path), "render: write %s", path)
}

// PrintSummary writes a human-readable sector table with thousands separators.
func PrintSummary(w io.Writer, rows []aggregate.SummaryRow) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "%-6s %-24s %12s %8s %9s %7s\n", "NAICS", "Sector", "Jobs", "Blocks", "Dominant", "Share")
	var total, blocks int
	for _, r := range rows {
		p.Fprintf(w, "%-6s %-24s %12d %8d %9d %6.1f%%\n",
			r.Code, r.Sector, r.TotalJobs, r.Blocks, r.DominantBlocks, r.PctOfTotal)
		total += r.TotalJobs
		blocks += r.DominantBlocks
	}
	p.Fprintf(w, "%-6s %-24s %12d %8s %9d\n", "", "Total", total, "", blocks)
}
