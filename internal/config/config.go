package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lodes-map/internal/transform"
)

// Config holds the full application configuration.
type Config struct {
	LODES     LODESConfig     `yaml:"lodes" mapstructure:"lodes"`
	Geometry  GeometryConfig  `yaml:"geometry" mapstructure:"geometry"`
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Publish   PublishConfig   `yaml:"publish" mapstructure:"publish"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// LODESConfig selects the LODES WAC file and the county to keep.
type LODESConfig struct {
	Year       int    `yaml:"year" mapstructure:"year"`
	State      string `yaml:"state" mapstructure:"state"`             // postal abbreviation, e.g. "ca"
	StateFIPS  string `yaml:"state_fips" mapstructure:"state_fips"`   // "06"
	CountyFIPS string `yaml:"county_fips" mapstructure:"county_fips"` // "037"
	Segment    string `yaml:"segment" mapstructure:"segment"`
	JobType    string `yaml:"job_type" mapstructure:"job_type"`
	Version    string `yaml:"version" mapstructure:"version"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Path       string `yaml:"path" mapstructure:"path"` // overrides the conventional data/ path
}

// GeometryConfig selects the block geometry source.
type GeometryConfig struct {
	Year    int    `yaml:"year" mapstructure:"year"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// PathsConfig holds the input and output directories.
type PathsConfig struct {
	DataDir   string `yaml:"data_dir" mapstructure:"data_dir"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// AggregateConfig configures sector aggregation.
type AggregateConfig struct {
	Unclassified string `yaml:"unclassified" mapstructure:"unclassified"` // bucket or drop
}

// RenderConfig configures the map document.
type RenderConfig struct {
	Sector    string  `yaml:"sector" mapstructure:"sector"`
	Title     string  `yaml:"title" mapstructure:"title"`
	CenterLat float64 `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon float64 `yaml:"center_lon" mapstructure:"center_lon"`
	Zoom      int     `yaml:"zoom" mapstructure:"zoom"`
	TileURL   string  `yaml:"tile_url" mapstructure:"tile_url"`
	Classes   int     `yaml:"classes" mapstructure:"classes"`
}

// StoreConfig configures the SQLite cache.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PublishConfig configures the optional PostGIS publish.
type PublishConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// FetchConfig configures input downloads.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the preview server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var (
	stateFIPSRe  = regexp.MustCompile(`^\d{2}$`)
	countyFIPSRe = regexp.MustCompile(`^\d{3}$`)
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LODES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Defaults target Los Angeles County, California.
func setDefaults(v *viper.Viper) {
	v.SetDefault("lodes.year", 2021)
	v.SetDefault("lodes.state", "ca")
	v.SetDefault("lodes.state_fips", "06")
	v.SetDefault("lodes.county_fips", "037")
	v.SetDefault("lodes.segment", "S000")
	v.SetDefault("lodes.job_type", "JT00")
	v.SetDefault("lodes.version", "LODES8")
	v.SetDefault("lodes.base_url", "https://lehd.ces.census.gov/data/lodes")
	v.SetDefault("lodes.path", "")
	v.SetDefault("geometry.year", 2020)
	v.SetDefault("geometry.base_url", "https://www2.census.gov/geo/tiger")
	v.SetDefault("geometry.path", "")
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.output_dir", "output")
	v.SetDefault("aggregate.unclassified", "bucket")
	v.SetDefault("render.sector", "")
	v.SetDefault("render.title", "Los Angeles County Jobs by Census Block")
	v.SetDefault("render.center_lat", 34.05)
	v.SetDefault("render.center_lon", -118.25)
	v.SetDefault("render.zoom", 10)
	v.SetDefault("render.tile_url", "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png")
	v.SetDefault("render.classes", 7)
	v.SetDefault("store.path", "")
	v.SetDefault("publish.database_url", "")
	v.SetDefault("publish.schema", "lodes")
	v.SetDefault("publish.batch_size", 50000)
	v.SetDefault("fetch.timeout_secs", 600)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "lodes-map/1.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings a command mode needs. Modes: run, fetch,
// publish, serve. All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		errs = append(errs, c.validateArea()...)
		if c.LODES.Path == "" && (c.LODES.State == "" || c.LODES.Year <= 0) {
			errs = append(errs, "lodes.state and lodes.year are required when lodes.path is empty")
		}
		if c.Geometry.Path == "" && c.Geometry.Year <= 0 {
			errs = append(errs, "geometry.year is required when geometry.path is empty")
		}
		switch c.Aggregate.Unclassified {
		case "bucket", "drop":
		default:
			errs = append(errs, fmt.Sprintf("aggregate.unclassified %q must be bucket or drop", c.Aggregate.Unclassified))
		}
		if c.Render.Classes < 2 || c.Render.Classes > 7 {
			errs = append(errs, fmt.Sprintf("render.classes %d must be between 2 and 7", c.Render.Classes))
		}
	case "fetch":
		errs = append(errs, c.validateArea()...)
		if c.LODES.State == "" || c.LODES.Year <= 0 || c.Geometry.Year <= 0 {
			errs = append(errs, "lodes.state, lodes.year and geometry.year are required")
		}
	case "publish":
		if c.Publish.DatabaseURL == "" {
			errs = append(errs, "publish.database_url is required")
		}
		if c.Publish.BatchSize < 0 {
			errs = append(errs, "publish.batch_size must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateArea() []string {
	var errs []string
	if !stateFIPSRe.MatchString(c.LODES.StateFIPS) {
		errs = append(errs, fmt.Sprintf("lodes.state_fips %q must be 2 digits", c.LODES.StateFIPS))
	} else if c.LODES.State != "" {
		// lodes.state picks the download, state_fips filters rows; they must agree.
		switch fips, ok := transform.StateFIPS(c.LODES.State); {
		case !ok:
			errs = append(errs, fmt.Sprintf("lodes.state %q is not a state abbreviation", c.LODES.State))
		case fips != c.LODES.StateFIPS:
			errs = append(errs, fmt.Sprintf("lodes.state %q is FIPS %s but lodes.state_fips is %q",
				c.LODES.State, fips, c.LODES.StateFIPS))
		}
	}
	if c.LODES.CountyFIPS != "" && !countyFIPSRe.MatchString(c.LODES.CountyFIPS) {
		errs = append(errs, fmt.Sprintf("lodes.county_fips %q must be 3 digits", c.LODES.CountyFIPS))
	}
	return errs
}

// Area returns the state+county FIPS prefix, e.g. "06037".
func (c *Config) Area() string {
	return c.LODES.StateFIPS + c.LODES.CountyFIPS
}

// StorePath returns the SQLite cache path, defaulting to
// {data_dir}/lodes_blocks_{statefips}{countyfips}.db.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.Paths.DataDir, fmt.Sprintf("lodes_blocks_%s.db", c.Area()))
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
