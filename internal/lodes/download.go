package lodes

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lodes-map/internal/fetcher"
)

// Download fetches a WAC file to path. An existing non-empty file is reused
// unless force is set.
func Download(ctx context.Context, f fetcher.Fetcher, url, path string, force bool) (string, error) {
	log := zap.L().With(
		zap.String("component", "lodes.download"),
		zap.String("url", url),
		zap.String("path", path),
	)

	if info, err := os.Stat(path); err == nil && info.Size() > 0 && !force {
		log.Debug("file already exists, skipping download")
		return path, nil
	}

	log.Info("downloading LODES file")
	n, err := f.DownloadToFile(ctx, url, path)
	if err != nil {
		return "", eris.Wrap(err, "lodes: download")
	}
	log.Info("LODES file downloaded", zap.Int64("bytes", n))
	return path, nil
}
