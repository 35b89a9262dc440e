package tiger

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

type testBlock struct {
	geoid string
	aland int
	lat   string
	lon   string
	rings [][]shp.Point
}

// square returns a closed clockwise ring with its lower-left corner at (x, y).
func square(x, y, size float64) []shp.Point {
	return []shp.Point{
		{X: x, Y: y},
		{X: x, Y: y + size},
		{X: x + size, Y: y + size},
		{X: x + size, Y: y},
		{X: x, Y: y},
	}
}

// hole returns a closed counter-clockwise ring.
func hole(x, y, size float64) []shp.Point {
	return []shp.Point{
		{X: x, Y: y},
		{X: x + size, Y: y},
		{X: x + size, Y: y + size},
		{X: x, Y: y + size},
		{X: x, Y: y},
	}
}

func writeShapefile(t *testing.T, dir string, keyField string, blocks []testBlock) string {
	t.Helper()
	path := filepath.Join(dir, "tl_2020_06_tabblock20.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField(keyField, 15),
		shp.NumberField("ALAND20", 14),
		shp.StringField("INTPTLAT20", 11),
		shp.StringField("INTPTLON20", 12),
	}))

	for _, b := range blocks {
		poly := shp.Polygon(*shp.NewPolyLine(b.rings))
		idx := int(w.Write(&poly))
		require.NoError(t, w.WriteAttribute(idx, 0, b.geoid))
		require.NoError(t, w.WriteAttribute(idx, 1, b.aland))
		require.NoError(t, w.WriteAttribute(idx, 2, b.lat))
		require.NoError(t, w.WriteAttribute(idx, 3, b.lon))
	}
	w.Close()

	// go-shp v0.1.1 names the attribute file "<base>dbf" without the dot.
	base := strings.TrimSuffix(path, ".shp")
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
	require.FileExists(t, base+".dbf")
	return path
}

func zipFiles(t *testing.T, zipPath string, files ...string) {
	t.Helper()
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	defer out.Close() //nolint:errcheck

	zw := zip.NewWriter(out)
	for _, name := range files {
		in, err := os.Open(name)
		require.NoError(t, err)
		fw, err := zw.Create(filepath.Base(name))
		require.NoError(t, err)
		_, err = io.Copy(fw, in)
		require.NoError(t, err)
		require.NoError(t, in.Close())
	}
	require.NoError(t, zw.Close())
}

func laBlocks() []testBlock {
	return []testBlock{
		{geoid: "060371011101000", aland: 12000, lat: "+34.2500000", lon: "-118.2900000", rings: [][]shp.Point{square(-118.3, 34.24, 0.02)}},
		{geoid: "060371011101001", aland: 8000, lat: "+34.2700000", lon: "-118.2900000", rings: [][]shp.Point{square(-118.3, 34.26, 0.02), hole(-118.295, 34.265, 0.005)}},
		{geoid: "060590011011000", aland: 5000, lat: "+33.7000000", lon: "-117.8000000", rings: [][]shp.Point{square(-117.81, 33.69, 0.02)}},
	}
}
