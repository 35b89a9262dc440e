package tiger

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/fetcher"
)

// Download fetches a TIGER/Line ZIP into destDir and extracts it.
// An existing non-empty ZIP is reused. Returns the path to the .shp file.
func Download(ctx context.Context, f fetcher.Fetcher, url, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "tiger.download"),
		zap.String("url", url),
	)

	parts := strings.Split(url, "/")
	zipPath := filepath.Join(destDir, parts[len(parts)-1])

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("zip already exists, skipping download", zap.String("path", zipPath))
	} else {
		log.Info("downloading TIGER shapefile")
		if _, err := f.DownloadToFile(ctx, url, zipPath); err != nil {
			return "", eris.Wrap(err, "tiger: download shapefile")
		}
	}

	return Extract(zipPath)
}

// Extract unpacks a TIGER/Line ZIP into a sibling directory named after the
// archive and returns the path to the .shp file.
func Extract(zipPath string) (string, error) {
	extractDir := strings.TrimSuffix(zipPath, filepath.Ext(zipPath))
	if shpPath, err := fetcher.FindByExt(extractDir, ".shp"); err == nil {
		return shpPath, nil
	}

	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create extract dir")
	}
	if _, err := fetcher.ExtractZIP(zipPath, extractDir); err != nil {
		return "", eris.Wrap(err, "tiger: extract ZIP")
	}

	shpPath, err := fetcher.FindByExt(extractDir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "tiger: find .shp file")
	}
	return shpPath, nil
}
