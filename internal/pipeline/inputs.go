package pipeline

import (
	"path/filepath"

	"github.com/sells-group/lodes-map/internal/config"
	"github.com/sells-group/lodes-map/internal/lodes"
	"github.com/sells-group/lodes-map/internal/tiger"
)

// Inputs are the two source files of a run and where they are published.
type Inputs struct {
	LODESPath    string
	LODESURL     string
	GeometryPath string
	GeometryURL  string
}

// ResolveInputs applies the conventional data/ layout unless a path is
// configured explicitly:
//
//	data/{st}_wac_S000_JT00_{year}.csv.gz
//	data/tl_{geoyear}_{statefips}_tabblock20.zip
func ResolveInputs(cfg *config.Config) Inputs {
	l := cfg.LODES
	in := Inputs{
		LODESURL:    lodes.DownloadURL(l.BaseURL, l.Version, l.State, l.Segment, l.JobType, l.Year),
		GeometryURL: tiger.DownloadURL(cfg.Geometry.BaseURL, tiger.Tabblock20, cfg.Geometry.Year, l.StateFIPS),
	}

	in.LODESPath = l.Path
	if in.LODESPath == "" {
		in.LODESPath = filepath.Join(cfg.Paths.DataDir, lodes.FileName(l.State, l.Segment, l.JobType, l.Year))
	}
	in.GeometryPath = cfg.Geometry.Path
	if in.GeometryPath == "" {
		in.GeometryPath = filepath.Join(cfg.Paths.DataDir, tiger.FileName(tiger.Tabblock20, cfg.Geometry.Year, l.StateFIPS))
	}
	return in
}
