package render

import (
	"embed"
	"encoding/json"
	"html/template"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/join"
	"github.com/sells-group/lodes-map/internal/transform"
)

//go:embed templates/map.html.tmpl
var templateFS embed.FS

var mapTemplate = template.Must(template.ParseFS(templateFS, "templates/map.html.tmpl"))

// TotalLayer is the layer key for all-sector employment.
const TotalLayer = "total"

// ErrNoLayer means the requested initial sector has no layer on the map,
// e.g. the unclassified bucket when no job was left unclassified.
var ErrNoLayer = eris.New("render: no map layer for sector")

// MapOptions controls the map document.
type MapOptions struct {
	Title     string
	Sector    string // initial layer: a sector code, or empty for total employment
	CenterLat float64
	CenterLon float64
	Zoom      int
	TileURL   string
	Classes   int
}

// Layer is one selectable shading of the map.
type Layer struct {
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Color     string   `json:"color"`
	TotalJobs int      `json:"total_jobs"`
	Breaks    []int    `json:"breaks"`
	Colors    []string `json:"colors"`
}

type mapData struct {
	Title     string
	Sector    string
	CenterLat float64
	CenterLon float64
	Zoom      int
	TileURL   string
	Blocks    int
	Jobs      int
	Missing   int
	Layers    template.JS
	Features  template.JS
}

// Layers builds the total layer followed by one layer per summary row, each
// with quantile breaks over its block values.
func Layers(features []join.Feature, summary []aggregate.SummaryRow, classes int) []Layer {
	drawn := join.Drawable(features)
	totals := make([]int, 0, len(drawn))
	for _, f := range drawn {
		totals = append(totals, f.Total)
	}
	var all int
	for _, r := range summary {
		all += r.TotalJobs
	}

	layers := []Layer{newLayer(TotalLayer, "All sectors", "#e94560", all, totals, classes)}
	for _, r := range summary {
		vals := make([]int, 0, len(drawn))
		for _, f := range drawn {
			vals = append(vals, f.Jobs(r.Code))
		}
		layers = append(layers, newLayer(r.Code, r.Sector, r.Color, r.TotalJobs, vals, classes))
	}
	return layers
}

func newLayer(code, name, color string, total int, vals []int, classes int) Layer {
	b := Breaks(vals, classes)
	return Layer{Code: code, Name: name, Color: color, TotalJobs: total, Breaks: b, Colors: ClassColors(len(b))}
}

// RenderMap writes a standalone Leaflet document with the features embedded.
func RenderMap(w io.Writer, features []join.Feature, r *aggregate.Result, opts MapOptions) error {
	if opts.Sector != "" && opts.Sector != TotalLayer {
		if _, ok := transform.SectorByCode(opts.Sector); !ok {
			return eris.Errorf("render: unknown sector %q", opts.Sector)
		}
	}
	if opts.Sector == "" {
		opts.Sector = TotalLayer
	}

	summary := aggregate.Summarize(r)
	layers := Layers(features, summary, opts.Classes)
	if !hasLayer(layers, opts.Sector) {
		return eris.Wrapf(ErrNoLayer, "render: sector %q", opts.Sector)
	}
	layersJSON, err := json.Marshal(layers)
	if err != nil {
		return eris.Wrap(err, "render: encode layers")
	}

	fc, err := collection(features, aggregate.CountyShares(r))
	if err != nil {
		return err
	}
	featuresJSON, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "render: encode features")
	}

	// json.Marshal escapes <, > and &, so both payloads are safe inside <script>.
	data := mapData{
		Title:     opts.Title,
		Sector:    opts.Sector,
		CenterLat: opts.CenterLat,
		CenterLon: opts.CenterLon,
		Zoom:      opts.Zoom,
		TileURL:   opts.TileURL,
		Blocks:    len(fc.Features),
		Jobs:      r.TotalJobs(),
		Missing:   len(features) - len(fc.Features),
		Layers:    template.JS(layersJSON),   //nolint:gosec
		Features:  template.JS(featuresJSON), //nolint:gosec
	}
	return eris.Wrap(mapTemplate.Execute(w, data), "render: execute map template")
}

func hasLayer(layers []Layer, code string) bool {
	for _, l := range layers {
		if l.Code == code {
			return true
		}
	}
	return false
}

// WriteMap renders the map document to path.
func WriteMap(path string, features []join.Feature, r *aggregate.Result, opts MapOptions) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if err := RenderMap(f, features, r, opts); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "render: close map")
	}

	zap.L().Info("map written",
		zap.String("component", "render"),
		zap.String("path", path),
		zap.Int("features", len(features)),
	)
	return nil
}
