package tiger

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoadBlocks reads block geometry from a TIGER/Line ZIP, a shapefile or a
// GeoJSON FeatureCollection, chosen by extension. A source with no block in
// the filter's area is an error.
func LoadBlocks(path string, filter Filter) ([]Block, error) {
	var (
		blocks []Block
		err    error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".zip":
		shpPath, xerr := Extract(path)
		if xerr != nil {
			return nil, xerr
		}
		blocks, err = ReadShapefile(shpPath, filter)
	case ".shp":
		blocks, err = ReadShapefile(path, filter)
	case ".geojson", ".json":
		blocks, err = ReadGeoJSON(path, filter)
	default:
		return nil, eris.Errorf("tiger: unsupported geometry file %s", path)
	}
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, eris.Wrapf(ErrNoArea, "%s: prefix %s", path, filter.Prefix())
	}

	zap.L().Info("block geometry loaded",
		zap.String("component", "tiger.loader"),
		zap.String("path", path),
		zap.String("prefix", filter.Prefix()),
		zap.Int("blocks", len(blocks)),
	)
	return blocks, nil
}
