package lodes

import (
	"compress/gzip"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/transform"
)

// Options restricts a load to one county.
type Options struct {
	StateFIPS  string // "06"
	CountyFIPS string // "037"; empty keeps every county in the state
}

// Load opens a LODES file (.csv or .csv.gz) and parses it with Read.
func Load(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "lodes: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, eris.Wrapf(err, "lodes: gzip %s", path)
		}
		defer gz.Close() //nolint:errcheck
		r = gz
	}

	t, err := Read(r, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "lodes: parse %s", path)
	}

	zap.L().Info("lodes file loaded",
		zap.String("component", "lodes.loader"),
		zap.String("path", path),
		zap.String("format", string(t.Format)),
		zap.Int("blocks", t.Blocks()),
		zap.Int("rows", len(t.Rows)),
		zap.Int("skipped", t.Skipped),
	)
	return t, nil
}

// Read parses LODES CSV content. The layout is detected from the header:
// any CNS column selects the WAC layout, a NAICS column the long layout.
func Read(r io.Reader, opts Options) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.Wrap(ErrSchema, "empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}

	colIdx := mapColumns(header)
	geoIdx := findCol(colIdx, geocodeCols)
	if geoIdx < 0 {
		return nil, eris.Wrapf(ErrMissingKey, "header %v", header)
	}

	p := &parser{
		geoIdx: geoIdx,
		prefix: transform.NormalizeFIPSState(opts.StateFIPS) + transform.NormalizeFIPSCounty(opts.CountyFIPS),
		table:  &Table{Totals: make(map[string]int)},
	}

	var parseRow func(record []string, line int) error
	switch {
	case hasCNS(header):
		p.table.Format = FormatWAC
		p.totalIdx = findCol(colIdx, []string{"c000"})
		for i, col := range header {
			if s, ok := transform.SectorForCNS(col); ok {
				p.cns = append(p.cns, cnsCol{idx: i, code: s.Prefixes[0]})
			}
		}
		parseRow = p.wacRow
	case findCol(colIdx, naicsCols) >= 0:
		p.table.Format = FormatLong
		p.naicsIdx = findCol(colIdx, naicsCols)
		p.jobsIdx = findCol(colIdx, jobsCols)
		if p.jobsIdx < 0 {
			return nil, eris.Wrap(ErrSchema, "long layout has no jobs column")
		}
		parseRow = p.longRow
	default:
		return nil, eris.Wrapf(ErrSchema, "no CNS or NAICS columns in header %v", header)
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "line %d", line)
		}
		if err := parseRow(record, line); err != nil {
			return nil, err
		}
	}

	if p.table.Blocks() == 0 && p.table.Skipped > 0 {
		return nil, eris.Wrapf(ErrNoArea, "area %s: all %d rows skipped, first from county %s",
			p.prefix, p.table.Skipped, p.skippedCounty)
	}
	return p.table, nil
}

type cnsCol struct {
	idx  int
	code string
}

type parser struct {
	prefix        string
	skippedCounty string // county of the first out-of-area row
	geoIdx        int
	totalIdx      int
	naicsIdx      int
	jobsIdx       int
	cns           []cnsCol
	table         *Table
}

// geoid extracts and filters the block geocode. ok=false means out of area.
func (p *parser) geoid(record []string, line int) (string, bool, error) {
	g := transform.NormalizeBlockGEOID(getCol(record, p.geoIdx))
	if g == "" {
		return "", false, eris.Wrapf(ErrMissingKey, "line %d: empty geocode", line)
	}
	if !strings.HasPrefix(g, p.prefix) {
		if p.table.Skipped == 0 {
			p.skippedCounty = transform.CountyOf(g)
		}
		p.table.Skipped++
		return "", false, nil
	}
	return g, true, nil
}

func (p *parser) wacRow(record []string, line int) error {
	g, ok, err := p.geoid(record, line)
	if err != nil || !ok {
		return err
	}

	var sum int
	for _, c := range p.cns {
		v, ok := parseCount(getCol(record, c.idx))
		if !ok {
			return eris.Wrapf(ErrSchema, "line %d: bad count %q in column %d", line, getCol(record, c.idx), c.idx+1)
		}
		if v == 0 {
			continue
		}
		sum += v
		p.table.Rows = append(p.table.Rows, Row{GEOID: g, NAICS: c.code, Jobs: v})
	}

	total := sum
	if p.totalIdx >= 0 {
		v, ok := parseCount(getCol(record, p.totalIdx))
		if !ok {
			return eris.Wrapf(ErrSchema, "line %d: bad C000 %q", line, getCol(record, p.totalIdx))
		}
		total = v
	}
	p.table.Totals[g] += total
	return nil
}

func (p *parser) longRow(record []string, line int) error {
	g, ok, err := p.geoid(record, line)
	if err != nil || !ok {
		return err
	}

	v, ok := parseCount(getCol(record, p.jobsIdx))
	if !ok {
		return eris.Wrapf(ErrSchema, "line %d: bad jobs %q", line, getCol(record, p.jobsIdx))
	}

	p.table.Totals[g] += v
	if v > 0 {
		p.table.Rows = append(p.table.Rows, Row{GEOID: g, NAICS: getCol(record, p.naicsIdx), Jobs: v})
	}
	return nil
}

func hasCNS(header []string) bool {
	for _, col := range header {
		if transform.IsCNSColumn(col) {
			return true
		}
	}
	return false
}
