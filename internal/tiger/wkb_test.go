package tiger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func TestEncodeDecodeWKB(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
		{{{-118.3, 34.24}, {-118.28, 34.24}, {-118.28, 34.26}, {-118.3, 34.26}, {-118.3, 34.24}}},
	})

	data, err := EncodeWKB(mp)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	got, err := DecodeWKB(data)
	require.NoError(t, err)
	assert.Equal(t, SRID, got.SRID())
	assert.Equal(t, mp.FlatCoords(), got.FlatCoords())
}

func TestEncodeWKB_Nil(t *testing.T) {
	data, err := EncodeWKB(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	got, err := DecodeWKB(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeWKB_PromotesPolygon(t *testing.T) {
	p := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
	}).SetSRID(SRID)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	require.NoError(t, err)

	got, err := DecodeWKB(data)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumPolygons())
}

func TestDecodeWKB_Garbage(t *testing.T) {
	_, err := DecodeWKB([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestSignedArea(t *testing.T) {
	cw := []geom.Coord{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}
	ccw := []geom.Coord{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	assert.InDelta(t, -1.0, signedArea(cw), 1e-12)
	assert.InDelta(t, 1.0, signedArea(ccw), 1e-12)
}
