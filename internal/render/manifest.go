package render

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lodes-map/internal/aggregate"
	"github.com/sells-group/lodes-map/internal/join"
)

// Manifest records what a run consumed and produced.
type Manifest struct {
	RunID     string                 `yaml:"run_id"`
	StartedAt time.Time              `yaml:"started_at"`
	Duration  string                 `yaml:"duration"`
	Area      ManifestArea           `yaml:"area"`
	Inputs    ManifestInputs         `yaml:"inputs"`
	Policy    string                 `yaml:"unclassified_policy"`
	TotalJobs int                    `yaml:"total_jobs"`
	Tracts    int                    `yaml:"tracts"`
	Adjusted  int                    `yaml:"adjusted_blocks"`
	Join      join.Stats             `yaml:"join"`
	Stages    map[string]string      `yaml:"stages,omitempty"`
	Outputs   []string               `yaml:"outputs"`
	Sectors   []aggregate.SummaryRow `yaml:"sectors"`
}

// ManifestArea identifies the county processed.
type ManifestArea struct {
	State      string `yaml:"state"`
	StateFIPS  string `yaml:"state_fips"`
	CountyFIPS string `yaml:"county_fips"`
}

// ManifestInputs lists the source files and their vintages.
type ManifestInputs struct {
	LODES        string `yaml:"lodes"`
	LODESYear    int    `yaml:"lodes_year"`
	LODESFormat  string `yaml:"lodes_format"`
	LODESRows    int    `yaml:"lodes_rows"`
	LODESSkipped int    `yaml:"lodes_skipped"`
	Geometry     string `yaml:"geometry"`
	GeometryYear int    `yaml:"geometry_year"`
}

// WriteManifest writes m as YAML.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "render: marshal manifest")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "render: create directory for %s", path)
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "render: write %s", path)
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "render: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "render: parse %s", path)
	}
	return &m, nil
}
